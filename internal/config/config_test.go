package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Database.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Database.IdleTxTimeout)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, 24*time.Hour, cfg.Telegram.InitDataTTL)
	assert.Equal(t, int64(30000), cfg.Tasks.WaitTimeMs)
	assert.Equal(t, 30*time.Second, cfg.Tasks.WaitDuration())
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, 100000, cfg.Admin.ExportPageSize)
	assert.Equal(t, 60, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
server:
  addr: ":8080"
database:
  driver: memory
telegram:
  bot_token: "from-file"
  webapp_url: "https://clicker.example.com"
tasks:
  wait_time_ms: 5000
  seed_file: "config/tasks.yaml"
`)
	t.Setenv("TASKS_WAIT_TIME_MS", "12000")
	t.Setenv("ACCESS_ADMIN", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "from-file", cfg.Telegram.BotToken)
	assert.Equal(t, "https://clicker.example.com", cfg.Telegram.WebAppURL)
	assert.Equal(t, int64(12000), cfg.Tasks.WaitTimeMs)
	assert.Equal(t, "config/tasks.yaml", cfg.Tasks.SeedFile)
	assert.True(t, cfg.Admin.Enabled)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "bot_token")

	dir := writeConfig(t, "database:\n  driver: sqlite\ntelegram:\n  bot_token: x\n")
	_, err = Load(dir)
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "clicker"}
	assert.Equal(t, "postgres://u:p@db:5433/clicker?sslmode=disable", cfg.DSN())
}
