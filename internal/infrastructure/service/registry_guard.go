// Package service contains adapters between the infrastructure clients and
// the interface layer.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/pddikti"
	"github.com/nant-dev/pddikti-bot/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY GUARD
// Wraps the registry client with a circuit breaker so a struggling portal is
// not hammered with repeated login handshakes and queries.
// ══════════════════════════════════════════════════════════════════════════════

// ErrRegistryUnavailable is returned while the circuit is open.
var ErrRegistryUnavailable = errors.New("service: registry temporarily unavailable")

// Queryer is the slice of the registry client the guard wraps.
type Queryer interface {
	Search(ctx context.Context, keyword string) ([]pddikti.SearchResult, error)
	Detail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error)
}

// RegistryGuard decorates the registry client with a circuit breaker.
type RegistryGuard struct {
	client  Queryer
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRegistryGuard wraps the given registry client.
func NewRegistryGuard(client Queryer, logger *slog.Logger) *RegistryGuard {
	if logger == nil {
		logger = slog.Default()
	}

	g := &RegistryGuard{
		client: client,
		logger: logger,
	}
	g.breaker = circuitbreaker.RegistryBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	})
	return g
}

// Search runs a guarded keyword search.
func (g *RegistryGuard) Search(ctx context.Context, keyword string) ([]pddikti.SearchResult, error) {
	var results []pddikti.SearchResult
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		results, err = g.client.Search(ctx, keyword)
		return err
	})
	if err != nil {
		return nil, g.mapErr(err)
	}
	return results, nil
}

// Detail runs a guarded detail lookup.
func (g *RegistryGuard) Detail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error) {
	var detail pddikti.StudentDetail
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		detail, err = g.client.Detail(ctx, registrationID)
		return err
	})
	if err != nil {
		return nil, g.mapErr(err)
	}
	return detail, nil
}

// State exposes the breaker state for observability.
func (g *RegistryGuard) State() circuitbreaker.State {
	return g.breaker.State()
}

func (g *RegistryGuard) mapErr(err error) error {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return ErrRegistryUnavailable
	}
	return err
}
