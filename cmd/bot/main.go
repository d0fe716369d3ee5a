// Package main is the entry point for the PDDikti Telegram bot service.
//
// One process runs two bot identities side by side: the admin bot, which
// manages the allow list and the activity trail, and the student bot, which
// answers registry lookups for allowed users. Both are driven by a single
// polling supervisor; a TCP responder answers platform health probes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nant-dev/pddikti-bot/config"
	"github.com/nant-dev/pddikti-bot/internal/domain/access"
	"github.com/nant-dev/pddikti-bot/internal/health"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/pddikti"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/telegram"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/persistence/jsonfile"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/persistence/postgres"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/persistence/redis"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/polling"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/service"
	ifacetg "github.com/nant-dev/pddikti-bot/internal/interface/telegram"
	"github.com/nant-dev/pddikti-bot/internal/interface/telegram/handler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting pddikti bot service",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE BACKENDS
	// JSON files by default; Postgres when DATABASE_URL is set.
	// ─────────────────────────────────────────────────────────────────────────
	var userStore access.UserStore
	var activityLog access.ActivityLog

	if cfg.Storage.DatabaseURL != "" {
		log.Info("connecting to database...")
		dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		log.Info("running database migrations...")
		if err := dbConn.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		userStore = postgres.NewUserStore(dbConn)
		activityLog = postgres.NewActivityLog(dbConn)
		log.Info("using postgres storage backend")
	} else {
		userStore = jsonfile.NewUserStore(cfg.Storage.UsersFile)
		activityLog = jsonfile.NewActivityLog(cfg.Storage.LogsFile, cfg.Storage.MaxLogEntries)
		log.Info("using json file storage backend",
			"users_file", cfg.Storage.UsersFile,
			"logs_file", cfg.Storage.LogsFile,
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. LOOKUP CACHE (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var searchCache handler.SearchCache
	if cfg.Storage.RedisURL != "" {
		log.Info("connecting to Redis...")
		cache, err := redis.NewCacheFromURL(ctx, cfg.Storage.RedisURL)
		if err != nil {
			log.Warn("failed to connect to Redis, lookup caching disabled", "error", err)
		} else {
			defer cache.Close()
			searchCache = redis.NewSearchCache(cache)
			log.Info("Redis lookup cache enabled")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REGISTRY CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	sessionCfg := pddikti.DefaultSessionConfig(cfg.PDDikti.PortalURL)
	sessionCfg.Timeout = cfg.PDDikti.RequestTimeout
	session, err := pddikti.NewSession(sessionCfg)
	if err != nil {
		return fmt.Errorf("failed to create registry session: %w", err)
	}

	authCfg := pddikti.DefaultAuthConfig(cfg.PDDikti.Username, cfg.PDDikti.Password)
	authCfg.PortalURL = cfg.PDDikti.PortalURL
	authCfg.APIURL = cfg.PDDikti.APIURL
	authCfg.RoleID = cfg.PDDikti.RoleID
	authCfg.Logger = log
	authenticator, err := pddikti.NewAuthenticator(authCfg, session)
	if err != nil {
		return fmt.Errorf("failed to create registry authenticator: %w", err)
	}

	clientCfg := pddikti.DefaultClientConfig(cfg.PDDikti.APIURL)
	clientCfg.RoleID = cfg.PDDikti.RoleID
	clientCfg.SearchLimit = cfg.PDDikti.SearchLimit
	clientCfg.Logger = log
	registryClient := pddikti.NewClient(clientCfg, session, authenticator)
	registry := service.NewRegistryGuard(registryClient, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. TELEGRAM CLIENTS
	// Both identities must resolve before any polling starts.
	// ─────────────────────────────────────────────────────────────────────────
	adminClient := newTelegramClient(cfg, cfg.Telegram.AdminToken, log)
	studentClient := newTelegramClient(cfg, cfg.Telegram.StudentToken, log)

	adminMe, err := adminClient.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("admin bot identity check failed: %w", err)
	}
	studentMe, err := studentClient.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("student bot identity check failed: %w", err)
	}
	log.Info("bot identities resolved",
		"admin_bot", adminMe.Username,
		"student_bot", studentMe.Username,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ROUTERS AND HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	adminRouter := ifacetg.NewRouter(ifacetg.RouterConfig{Logger: log, Debug: cfg.App.Debug})
	handler.NewAdminHandlers(
		access.TelegramID(cfg.Telegram.AdminID), userStore, activityLog, log,
	).Register(adminRouter)

	studentRouter := ifacetg.NewRouter(ifacetg.RouterConfig{Logger: log, Debug: cfg.App.Debug})
	handler.NewStudentHandlers(
		handler.StudentHandlersConfig{
			PassphraseHash: cfg.Storage.RegistPassphraseHash,
			Logger:         log,
		},
		userStore, activityLog, registry, searchCache,
	).Register(studentRouter)

	adminBot := ifacetg.NewBot(ifacetg.BotConfig{Name: "admin", Logger: log}, adminClient, adminRouter)
	studentBot := ifacetg.NewBot(ifacetg.BotConfig{Name: "student", Logger: log}, studentClient, studentRouter)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. POLLING SUPERVISOR
	// Distinct intervals and staggers keep the two loops out of phase.
	// ─────────────────────────────────────────────────────────────────────────
	allowedUpdates := []string{"message", "callback_query"}

	sources := []*polling.Source{
		{
			Name:         "admin",
			Fetcher:      telegram.NewUpdateFetcher(adminClient, allowedUpdates),
			Handler:      adminBot.HandleUpdate,
			Interval:     cfg.Polling.AdminInterval,
			Stagger:      cfg.Polling.AdminStagger,
			FetchTimeout: cfg.Polling.FetchTimeout,
			Limit:        cfg.Polling.Limit,
		},
		{
			Name:         "student",
			Fetcher:      telegram.NewUpdateFetcher(studentClient, allowedUpdates),
			Handler:      studentBot.HandleUpdate,
			Interval:     cfg.Polling.StudentInterval,
			Stagger:      cfg.Polling.StudentStagger,
			FetchTimeout: cfg.Polling.FetchTimeout,
			Limit:        cfg.Polling.Limit,
		},
	}

	supervisorCfg := polling.DefaultSupervisorConfig()
	supervisorCfg.Logger = log
	supervisor := polling.NewSupervisor(supervisorCfg, sources...)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HEALTH RESPONDER
	// ─────────────────────────────────────────────────────────────────────────
	healthSrv := health.NewServer(health.ServerConfig{Addr: cfg.Health.Addr, Logger: log})

	errCh := make(chan error, 1)
	go func() {
		if err := healthSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. RUN
	// The supervisor blocks until ctx is cancelled and every loop has drained;
	// returning from it is the graceful shutdown.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("pddikti bot service is running")

	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	select {
	case err := <-errCh:
		log.Error("service error, shutting down", "error", err)
		<-done
		return err
	case <-done:
	}

	log.Info("shutdown completed")
	return nil
}

// newTelegramClient builds a client for one bot identity.
func newTelegramClient(cfg *config.Config, token string, log *slog.Logger) *telegram.Client {
	clientCfg := telegram.DefaultClientConfig(token)
	clientCfg.Timeout = cfg.Telegram.RequestTimeout
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug
	return telegram.NewClient(clientCfg)
}

// setupLogger configures structured logging: JSON in production, text
// otherwise.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
