// Load envs from .env
// Load YAML config
// Override with environment
// Provide default values
// Validate config

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go-procurement-agent/internal/agent"
	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/browser"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LogLevel      string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	DatabaseURL   string `yaml:"database_url" envconfig:"DATABASE_URL"`
	RedisURL      string `yaml:"redis_url" envconfig:"REDIS_URL"`
	EventsChannel string `yaml:"events_channel" envconfig:"EVENTS_CHANNEL"`
	DebugDir      string `yaml:"debug_dir" envconfig:"DEBUG_DIR"`
	MetricsAddr   string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`

	Telegram  TelegramConfig  `yaml:"telegram"`
	LLM       LLMConfig       `yaml:"llm"`
	Browser   BrowserConfig   `yaml:"browser"`
	Budgets   BudgetsConfig   `yaml:"budgets"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID int64  `yaml:"chat_id" envconfig:"TELEGRAM_CHAT_ID"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" envconfig:"LLM_BASE_URL"`
	APIKey      string  `yaml:"api_key" envconfig:"LLM_API_KEY"`
	Model       string  `yaml:"model" envconfig:"LLM_MODEL"`
	Temperature float64 `yaml:"temperature" envconfig:"LLM_TEMPERATURE"`
}

type BrowserConfig struct {
	// Headless is a pointer so an explicit false in YAML survives defaults.
	Headless          *bool         `yaml:"headless" envconfig:"BROWSER_HEADLESS"`
	UserAgent         string        `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT"`
	SettleDelay       time.Duration `yaml:"settle_delay" envconfig:"BROWSER_SETTLE_DELAY"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" envconfig:"BROWSER_NAVIGATION_TIMEOUT"`
}

type BudgetsConfig struct {
	MaxPages          int           `yaml:"max_pages" envconfig:"MAX_PAGES"`
	MaxActionsPerPage int           `yaml:"max_actions_per_page" envconfig:"MAX_ACTIONS_PER_PAGE"`
	MaxJobDuration    time.Duration `yaml:"max_job_duration" envconfig:"MAX_JOB_DURATION"`
	ActionTimeout     time.Duration `yaml:"action_timeout" envconfig:"ACTION_TIMEOUT"`
	LLMTimeout        time.Duration `yaml:"llm_timeout" envconfig:"LLM_TIMEOUT"`
	NavigationRetries int           `yaml:"navigation_retries" envconfig:"NAVIGATION_RETRIES"`
	LLMRetries        int           `yaml:"llm_retries" envconfig:"LLM_RETRIES"`
	RetryBackoff      time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF"`
	MaxResumes        int           `yaml:"max_resumes" envconfig:"MAX_RESUMES"`
}

type SchedulerConfig struct {
	Spec       string        `yaml:"spec" envconfig:"SCHEDULE"`
	Workers    int           `yaml:"workers" envconfig:"WORKERS"`
	SeedLinks  bool          `yaml:"seed_links" envconfig:"SEED_LINKS"`
	StaleAfter time.Duration `yaml:"stale_after" envconfig:"STALE_AFTER"`
}

type ServerConfig struct {
	Port string `yaml:"port" envconfig:"PORT"`
}

// Load reads .env, then the YAML file at path, then environment overrides.
// A missing YAML file is not an error; everything can come from the
// environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	//Load yaml config
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	//Override with env vars
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DebugDir == "" {
		c.DebugDir = "logs/debug"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = ai.DefaultBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "meta-llama/llama-4-scout-17b-16e-instruct"
	}
	if c.Browser.Headless == nil {
		headless := true
		c.Browser.Headless = &headless
	}
	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "@every 6h"
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 1
	}
	if c.Scheduler.StaleAfter == 0 {
		c.Scheduler.StaleAfter = time.Hour
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
}

// Validate checks values that are wrong regardless of which command runs.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	b := c.Budgets
	for name, v := range map[string]int{
		"max_pages":            b.MaxPages,
		"max_actions_per_page": b.MaxActionsPerPage,
		"navigation_retries":   b.NavigationRetries,
		"llm_retries":          b.LLMRetries,
		"max_resumes":          b.MaxResumes,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("budgets.%s must not be negative", name))
		}
	}
	if b.MaxJobDuration < 0 {
		errs = append(errs, errors.New("budgets.max_job_duration must not be negative"))
	}
	if c.Scheduler.Workers < 0 {
		errs = append(errs, errors.New("scheduler.workers must not be negative"))
	}
	// A job younger than one full attempt would be resumed while its worker
	// is still running it.
	if run := c.AgentBudgets().MaxRunTime(); c.Scheduler.StaleAfter > 0 && c.Scheduler.StaleAfter <= run {
		errs = append(errs, fmt.Errorf("scheduler.stale_after %s must exceed budgets.max_job_duration plus one planner, action and extraction round (%s)", c.Scheduler.StaleAfter, run))
	}
	return errors.Join(errs...)
}

func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return errors.New("LLM_API_KEY (or GROQ_API_KEY) is required")
	}
	return nil
}

func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// AgentBudgets overlays the configured values on agent.DefaultBudgets.
func (c *Config) AgentBudgets() agent.Budgets {
	out := agent.DefaultBudgets()
	b := c.Budgets
	if b.MaxPages > 0 {
		out.MaxPagesPerPortal = b.MaxPages
	}
	if b.MaxActionsPerPage > 0 {
		out.MaxActionsPerPage = b.MaxActionsPerPage
	}
	if b.MaxJobDuration > 0 {
		out.MaxJobDuration = b.MaxJobDuration
	}
	if b.ActionTimeout > 0 {
		out.ActionTimeout = b.ActionTimeout
	}
	if b.LLMTimeout > 0 {
		out.LLMTimeout = b.LLMTimeout
	}
	if b.NavigationRetries > 0 {
		out.NavigationRetries = b.NavigationRetries
	}
	if b.LLMRetries > 0 {
		out.LLMRetries = b.LLMRetries
	}
	if b.RetryBackoff > 0 {
		out.RetryBackoff = b.RetryBackoff
	}
	if b.MaxResumes > 0 {
		out.MaxResumes = b.MaxResumes
	}
	return out
}

func (c *Config) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = *c.Browser.Headless
	opts.UserAgent = c.Browser.UserAgent
	if c.Browser.SettleDelay > 0 {
		opts.SettleDelay = c.Browser.SettleDelay
	}
	if c.Browser.NavigationTimeout > 0 {
		opts.NavigationTimeout = c.Browser.NavigationTimeout
	}
	opts.MaxHTMLChars = c.AgentBudgets().MaxHTMLChars
	return opts
}

func (c *Config) LLMOptions() ai.Options {
	return ai.Options{
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.LLM.APIKey,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		JSONMode:    true,
	}
}
