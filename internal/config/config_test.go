package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUSINESS_TIMEZONE", "")
	t.Setenv("REMINDER_INTERVAL", "")
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_APP_TOKEN", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "America/Mexico_City", cfg.Business.Timezone)
	assert.Equal(t, 8, cfg.Business.StartHour)
	assert.Equal(t, 21, cfg.Business.EndHour)
	assert.Equal(t, time.Hour, cfg.Reminders.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reminders.OverdueAfter)
	assert.False(t, cfg.Slack.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("REMINDER_OVERDUE_AFTER=2h\nBUSINESS_HOURS_START=9\n"), 0o600))
	t.Setenv("REMINDER_OVERDUE_AFTER", "")
	t.Setenv("BUSINESS_HOURS_START", "")
	// godotenv never overrides variables that are already set, even empty.
	require.NoError(t, os.Unsetenv("REMINDER_OVERDUE_AFTER"))
	require.NoError(t, os.Unsetenv("BUSINESS_HOURS_START"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.Reminders.OverdueAfter)
	assert.Equal(t, 9, cfg.Business.StartHour)
}

func TestLoadRejectsInvertedBusinessHours(t *testing.T) {
	t.Setenv("BUSINESS_HOURS_START", "22")
	t.Setenv("BUSINESS_HOURS_END", "8")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
