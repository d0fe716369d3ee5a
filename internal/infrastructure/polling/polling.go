// Package polling implements the long-poll supervisor that drives the bots.
// Each bot identity gets its own polling loop with an exclusively owned
// cursor; the supervisor staggers their startup, keeps one loop's failure
// from touching another, and drains every loop on shutdown.
package polling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// Update is one inbound event with a monotonically increasing id.
type Update struct {
	ID      int64
	Payload any
}

// Fetcher fetches the next batch of updates for one bot identity.
// Offset is the first update id the caller has not yet processed.
type Fetcher interface {
	// Fetch blocks up to the long-poll wait and returns updates in ascending
	// id order.
	Fetch(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]Update, error)

	// Close releases provider-side state (e.g. webhook deregistration).
	// Called once by the supervisor after the source's loop has exited.
	Close(ctx context.Context) error
}

// Handler dispatches one update. A returned error marks the update as
// malformed; it is logged and skipped, never aborting the batch.
type Handler func(ctx context.Context, u Update) error

// Source is one polling slot: a bot identity plus its loop parameters.
// The cursor is mutated only by the loop that owns the source.
type Source struct {
	// Name identifies the source in logs.
	Name string

	// Fetcher is the bot identity's update feed.
	Fetcher Fetcher

	// Handler receives each fetched update in ascending id order.
	Handler Handler

	// Interval is the sleep between iterations. Different sources should use
	// different intervals to desynchronize their request timing.
	Interval time.Duration

	// Stagger delays this source's first fetch so sources never issue their
	// initial long poll at the same instant.
	Stagger time.Duration

	// FetchTimeout is the long-poll wait passed to the fetcher.
	FetchTimeout time.Duration

	// Limit caps events per batch.
	Limit int

	cursor int64
}

// Cursor returns the highest processed update id. Only meaningful once the
// source's loop has stopped.
func (s *Source) Cursor() int64 {
	return s.cursor
}

// ══════════════════════════════════════════════════════════════════════════════
// SUPERVISOR
// ══════════════════════════════════════════════════════════════════════════════

// SupervisorConfig contains configuration for the Supervisor.
type SupervisorConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// TeardownTimeout bounds the per-source Close call during shutdown.
	TeardownTimeout time.Duration
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Logger:          slog.Default(),
		TeardownTimeout: 10 * time.Second,
	}
}

// Supervisor owns a set of polling sources and runs one loop per source.
type Supervisor struct {
	config  SupervisorConfig
	logger  *slog.Logger
	sources []*Source
}

// NewSupervisor creates a Supervisor for the given sources.
func NewSupervisor(config SupervisorConfig, sources ...*Source) *Supervisor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TeardownTimeout <= 0 {
		config.TeardownTimeout = 10 * time.Second
	}

	return &Supervisor{
		config:  config,
		logger:  config.Logger,
		sources: sources,
	}
}

// Run starts every source's loop and returns once all loops have exited and
// each source has been torn down. Cancellation of ctx is the only way loops
// terminate; individual fetch or dispatch failures degrade to retry on the
// next iteration.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("polling supervisor starting", "sources", len(s.sources))

	var wg sync.WaitGroup
	for _, src := range s.sources {
		wg.Add(1)
		go func(src *Source) {
			defer wg.Done()
			s.runLoop(ctx, src)
		}(src)
	}
	wg.Wait()

	// All loops exited: provider-side cleanup happens outside the loops, one
	// source at a time, on a fresh context since ctx is already cancelled.
	for _, src := range s.sources {
		teardownCtx, cancel := context.WithTimeout(context.Background(), s.config.TeardownTimeout)
		if err := src.Fetcher.Close(teardownCtx); err != nil {
			s.logger.Warn("source teardown failed", "source", src.Name, "error", err)
		}
		cancel()
	}

	s.logger.Info("polling supervisor stopped")
}

// runLoop is one source's polling loop.
func (s *Supervisor) runLoop(ctx context.Context, src *Source) {
	log := s.logger.With("source", src.Name)

	if src.Stagger > 0 {
		log.Debug("staggering startup", "delay", src.Stagger)
		if !sleep(ctx, src.Stagger) {
			return
		}
	}

	log.Info("polling loop started", "interval", src.Interval)

	for {
		if ctx.Err() != nil {
			log.Info("polling loop cancelled", "cursor", src.cursor)
			return
		}

		updates, err := src.Fetcher.Fetch(ctx, src.cursor+1, src.Limit, src.FetchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("polling loop cancelled", "cursor", src.cursor)
				return
			}
			// No cursor advance: the next iteration retries the same offset.
			log.Error("fetch failed", "offset", src.cursor+1, "error", err)
		} else {
			s.dispatchBatch(ctx, src, updates, log)
		}

		if !sleep(ctx, src.Interval) {
			log.Info("polling loop cancelled", "cursor", src.cursor)
			return
		}
	}
}

// dispatchBatch hands every update to the handler in ascending id order and
// advances the cursor to the highest id seen, after the whole batch. One
// malformed update must not stop the stream.
func (s *Supervisor) dispatchBatch(ctx context.Context, src *Source, updates []Update, log *slog.Logger) {
	if len(updates) == 0 {
		return
	}

	maxID := src.cursor
	for _, u := range updates {
		if err := src.Handler(ctx, u); err != nil {
			log.Error("update dispatch failed, skipping", "update_id", u.ID, "error", err)
		}
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	src.cursor = maxID

	log.Debug("batch dispatched", "count", len(updates), "cursor", src.cursor)
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// wait elapsed. The wait must stay interruptible so shutdown is prompt.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
