package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application
	App AppConfig

	// Telegram bots
	Telegram TelegramConfig

	// PDDikti registry
	PDDikti PDDiktiConfig

	// Update polling
	Polling PollingConfig

	// Storage backends
	Storage StorageConfig

	// Health probe responder
	Health HealthConfig

	// Observability
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// TelegramConfig holds the two bot identities.
type TelegramConfig struct {
	// AdminToken is the control bot's token from @BotFather.
	AdminToken string

	// StudentToken is the lookup bot's token from @BotFather.
	StudentToken string

	// AdminID is the single Telegram user allowed on the control bot.
	AdminID int64

	// RequestTimeout is the HTTP timeout for Bot API calls. Must exceed the
	// polling long-poll wait.
	RequestTimeout time.Duration
}

// PDDiktiConfig holds registry portal settings. Credentials are required
// runtime configuration; they are never embedded and never logged.
type PDDiktiConfig struct {
	// PortalURL is the browser-facing portal.
	PortalURL string

	// APIURL is the portal's API host.
	APIURL string

	// Username and Password are the registry operator credentials.
	Username string
	Password string

	// RoleID is the role activated during login.
	RoleID string

	// SearchLimit caps rows per keyword search.
	SearchLimit int

	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration
}

// PollingConfig holds the long-poll loop parameters for both bots. The
// intervals differ and the staggers differ so the two loops never line up.
type PollingConfig struct {
	// AdminInterval is the sleep between admin-bot fetches.
	AdminInterval time.Duration

	// StudentInterval is the sleep between student-bot fetches.
	StudentInterval time.Duration

	// AdminStagger delays the admin bot's first fetch.
	AdminStagger time.Duration

	// StudentStagger delays the student bot's first fetch.
	StudentStagger time.Duration

	// FetchTimeout is the long-poll wait per fetch.
	FetchTimeout time.Duration

	// Limit caps updates per batch.
	Limit int
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	// UsersFile is the JSON allow-list file (default backend).
	UsersFile string

	// LogsFile is the JSON activity-trail file (default backend).
	LogsFile string

	// MaxLogEntries caps the JSON activity trail (0 = unbounded).
	MaxLogEntries int

	// DatabaseURL switches the allow list and activity trail to Postgres
	// when set.
	DatabaseURL string

	// RedisURL enables the registry lookup cache when set.
	RedisURL string

	// RegistPassphraseHash is the bcrypt hash gating /regist. Empty disables
	// self-registration.
	RegistPassphraseHash string
}

// HealthConfig holds the TCP liveness responder settings.
type HealthConfig struct {
	// Addr is the listen address.
	Addr string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	// LogLevel: debug, info, warn, error
	LogLevel string

	// LogFormat: json, text
	LogFormat string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App:           loadAppConfig(),
		Telegram:      loadTelegramConfig(),
		PDDikti:       loadPDDiktiConfig(),
		Polling:       loadPollingConfig(),
		Storage:       loadStorageConfig(),
		Health:        loadHealthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadAppConfig() AppConfig {
	env := Environment(getEnv("APP_ENV", "development"))

	return AppConfig{
		Name:            getEnv("APP_NAME", "pddikti-bot"),
		Environment:     env,
		Debug:           env == EnvDevelopment || getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "0.1.0"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadTelegramConfig() TelegramConfig {
	return TelegramConfig{
		AdminToken:     getEnv("ADMIN_BOT_TOKEN", ""),
		StudentToken:   getEnv("STUDENT_BOT_TOKEN", ""),
		AdminID:        getEnvInt64("ADMIN_ID", 0),
		RequestTimeout: getEnvDuration("TELEGRAM_REQUEST_TIMEOUT", 60*time.Second),
	}
}

func loadPDDiktiConfig() PDDiktiConfig {
	return PDDiktiConfig{
		PortalURL:      getEnv("PDDIKTI_PORTAL_URL", "https://pddikti-admin.kemdikbud.go.id"),
		APIURL:         getEnv("PDDIKTI_API_URL", "https://api-pddikti-admin.kemdikbud.go.id"),
		Username:       getEnv("PDDIKTI_USERNAME", ""),
		Password:       getEnv("PDDIKTI_PASSWORD", ""),
		RoleID:         getEnv("PDDIKTI_ROLE_ID", "3"),
		SearchLimit:    getEnvInt("PDDIKTI_SEARCH_LIMIT", 20),
		RequestTimeout: getEnvDuration("PDDIKTI_REQUEST_TIMEOUT", 30*time.Second),
	}
}

func loadPollingConfig() PollingConfig {
	return PollingConfig{
		AdminInterval:   getEnvDuration("POLL_ADMIN_INTERVAL", 1*time.Second),
		StudentInterval: getEnvDuration("POLL_STUDENT_INTERVAL", 1500*time.Millisecond),
		AdminStagger:    getEnvDuration("POLL_ADMIN_STAGGER", 1*time.Second),
		StudentStagger:  getEnvDuration("POLL_STUDENT_STAGGER", 2*time.Second),
		FetchTimeout:    getEnvDuration("POLL_FETCH_TIMEOUT", 30*time.Second),
		Limit:           getEnvInt("POLL_LIMIT", 100),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		UsersFile:            getEnv("ALLOWED_USERS_FILE", "allowed_users.json"),
		LogsFile:             getEnv("USER_LOGS_FILE", "user_logs.json"),
		MaxLogEntries:        getEnvInt("USER_LOGS_MAX_ENTRIES", 1000),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", ""),
		RegistPassphraseHash: getEnv("REGIST_PASSPHRASE_HASH", ""),
	}
}

func loadHealthConfig() HealthConfig {
	return HealthConfig{
		Addr: getEnv("HEALTH_ADDR", ":8000"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.AdminToken == "" {
		errs = append(errs, "ADMIN_BOT_TOKEN is required")
	}
	if c.Telegram.StudentToken == "" {
		errs = append(errs, "STUDENT_BOT_TOKEN is required")
	}
	if c.Telegram.AdminID <= 0 {
		errs = append(errs, "ADMIN_ID is required")
	}
	if c.PDDikti.Username == "" {
		errs = append(errs, "PDDIKTI_USERNAME is required")
	}
	if c.PDDikti.Password == "" {
		errs = append(errs, "PDDIKTI_PASSWORD is required")
	}
	if c.Telegram.RequestTimeout <= c.Polling.FetchTimeout {
		errs = append(errs, "TELEGRAM_REQUEST_TIMEOUT must exceed POLL_FETCH_TIMEOUT")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
