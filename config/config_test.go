package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the minimum environment for a valid config.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_BOT_TOKEN", "admin-token")
	t.Setenv("STUDENT_BOT_TOKEN", "student-token")
	t.Setenv("ADMIN_ID", "123456")
	t.Setenv("PDDIKTI_USERNAME", "operator")
	t.Setenv("PDDIKTI_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, int64(123456), cfg.Telegram.AdminID)
	assert.Equal(t, 60*time.Second, cfg.Telegram.RequestTimeout)

	assert.Equal(t, "https://pddikti-admin.kemdikbud.go.id", cfg.PDDikti.PortalURL)
	assert.Equal(t, "3", cfg.PDDikti.RoleID)
	assert.Equal(t, 20, cfg.PDDikti.SearchLimit)

	assert.Equal(t, time.Second, cfg.Polling.AdminInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Polling.StudentInterval)
	assert.Equal(t, time.Second, cfg.Polling.AdminStagger)
	assert.Equal(t, 2*time.Second, cfg.Polling.StudentStagger)
	assert.NotEqual(t, cfg.Polling.AdminInterval, cfg.Polling.StudentInterval)
	assert.NotEqual(t, cfg.Polling.AdminStagger, cfg.Polling.StudentStagger)

	assert.Equal(t, "allowed_users.json", cfg.Storage.UsersFile)
	assert.Equal(t, ":8000", cfg.Health.Addr)
}

func TestLoad_MissingTokens(t *testing.T) {
	t.Setenv("ADMIN_BOT_TOKEN", "")
	t.Setenv("STUDENT_BOT_TOKEN", "")
	t.Setenv("ADMIN_ID", "123456")
	t.Setenv("PDDIKTI_USERNAME", "operator")
	t.Setenv("PDDIKTI_PASSWORD", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_BOT_TOKEN")
	assert.Contains(t, err.Error(), "STUDENT_BOT_TOKEN")
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("ADMIN_BOT_TOKEN", "admin-token")
	t.Setenv("STUDENT_BOT_TOKEN", "student-token")
	t.Setenv("ADMIN_ID", "123456")
	t.Setenv("PDDIKTI_USERNAME", "")
	t.Setenv("PDDIKTI_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDDIKTI_USERNAME")
	assert.Contains(t, err.Error(), "PDDIKTI_PASSWORD")
}

func TestLoad_RequestTimeoutMustExceedPollWait(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TELEGRAM_REQUEST_TIMEOUT", "10s")
	t.Setenv("POLL_FETCH_TIMEOUT", "30s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_REQUEST_TIMEOUT")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("POLL_ADMIN_INTERVAL", "5s")
	t.Setenv("PDDIKTI_SEARCH_LIMIT", "50")
	t.Setenv("USER_LOGS_MAX_ENTRIES", "200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 5*time.Second, cfg.Polling.AdminInterval)
	assert.Equal(t, 50, cfg.PDDikti.SearchLimit)
	assert.Equal(t, 200, cfg.Storage.MaxLogEntries)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "not-a-bool")
	t.Setenv("TEST_DURATION", "not-a-duration")

	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.Equal(t, true, getEnvBool("TEST_BOOL", true))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
	assert.Equal(t, int64(9), getEnvInt64("TEST_INT", 9))
}
