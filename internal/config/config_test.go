package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/ai"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeYAML(t, `
log_level: debug
database_url: postgres://agent@localhost/procurement
telegram:
  token: bot-token
  chat_id: 42
llm:
  model: vision-model
  temperature: 0.2
browser:
  headless: false
  settle_delay: 500ms
budgets:
  max_pages: 5
  max_job_duration: 10m
scheduler:
  spec: "@every 1h"
  workers: 3
  seed_links: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, "vision-model", cfg.LLM.Model)
	assert.Equal(t, ai.DefaultBaseURL, cfg.LLM.BaseURL)
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.True(t, cfg.Scheduler.SeedLinks)

	b := cfg.AgentBudgets()
	assert.Equal(t, 5, b.MaxPagesPerPortal)
	assert.Equal(t, 10, b.MaxActionsPerPage)
	assert.Equal(t, 10*time.Minute, b.MaxJobDuration)

	opts := cfg.BrowserOptions()
	assert.False(t, opts.Headless)
	assert.Equal(t, 500*time.Millisecond, opts.SettleDelay)
	assert.Equal(t, 60*time.Second, opts.NavigationTimeout)

	llm := cfg.LLMOptions()
	assert.True(t, llm.JSONMode)
	assert.Equal(t, 0.2, llm.Temperature)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, *cfg.Browser.Headless)
	assert.Equal(t, "@every 6h", cfg.Scheduler.Spec)
	assert.Equal(t, 1, cfg.Scheduler.Workers)
	assert.Equal(t, time.Hour, cfg.Scheduler.StaleAfter)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "logs/debug", cfg.DebugDir)

	b := cfg.AgentBudgets()
	assert.Equal(t, 20, b.MaxPagesPerPortal)
	assert.Equal(t, 10, b.MaxActionsPerPage)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
database_url: postgres://from-yaml
llm:
  model: yaml-model
budgets:
  max_pages: 5
`)
	t.Setenv("DATABASE_URL", "postgres://from-env")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("MAX_PAGES", "7")
	t.Setenv("TELEGRAM_BOT_TOKEN", "t")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("STALE_AFTER", "90m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-env", cfg.DatabaseURL)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.AgentBudgets().MaxPagesPerPortal)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, "groq-key", cfg.LLM.APIKey)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.StaleAfter)
	assert.NoError(t, cfg.RequireLLM())
	assert.NoError(t, cfg.RequireDatabase())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad level", "log_level: loud", "log_level"},
		{"token without chat", "telegram:\n  token: t", "TELEGRAM_CHAT_ID"},
		{"negative budget", "budgets:\n  max_pages: -1", "budgets.max_pages"},
		{"temperature", "llm:\n  temperature: 3", "llm.temperature"},
		{"broken yaml", "budgets: [", "parse"},
		{"stale sweep shorter than a run", "scheduler:\n  stale_after: 10m", "scheduler.stale_after"},
		{"time budget longer than stale sweep", "budgets:\n  max_job_duration: 2h", "scheduler.stale_after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStaleAfterCoversLongestRun(t *testing.T) {
	path := writeYAML(t, `
budgets:
  max_job_duration: 2h
scheduler:
  stale_after: 3h
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Greater(t, cfg.Scheduler.StaleAfter, cfg.AgentBudgets().MaxRunTime())
	assert.Greater(t, cfg.AgentBudgets().MaxRunTime(), 2*time.Hour)
}

func TestRequireChecks(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Error(t, cfg.RequireLLM())
	assert.Error(t, cfg.RequireDatabase())
}
