package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	path := writeFile(t, `
database:
  driver: sqlite
  path: ./queue.db
dispatch:
  daily_limit: 250
  schedule: "*/5 * * * *"
  enabled: false
  timezone: UTC
  stale_after: 10m
mail:
  from: noreply@example.com
`)
	t.Setenv("DISPATCH_DAILY_LIMIT", "40")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 40, cfg.Dispatch.DailyLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter())
	assert.Equal(t, 30*time.Second, cfg.MailTimeout())

	d := cfg.DispatchDefaults()
	assert.Equal(t, 40, d.DailyLimit)
	assert.Equal(t, "*/5 * * * *", d.ScheduleExpression)
	assert.False(t, d.Enabled)
}

func TestLoadComposesDSNFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "mailer")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "dispatch")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://mailer:secret@db:5432/dispatch?sslmode=disable", cfg.Database.URL)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Dispatch.ResumeAt = "25:00"
	cfg.Dispatch.Timezone = "Mars/Olympus"
	cfg.Dispatch.StaleAfter = "soon"
	cfg.Mail.Provider = "http"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"database.driver", "dispatch.resume_at", "dispatch.timezone", "dispatch.stale_after", "mail.api_url"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	env := map[string]string{"DISPATCH_DAILY_LIMIT": "lots", "DISPATCH_ENABLED": "maybe"}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPATCH_DAILY_LIMIT")
	assert.Contains(t, err.Error(), "DISPATCH_ENABLED")
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	_, err = ParseDurationField("x", "-5s")
	assert.Error(t, err)
}
