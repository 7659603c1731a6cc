package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// Config is the root configuration, populated by viper from defaults, the
// config file and the environment.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	ReasonerCfg  ReasonerConfig  `mapstructure:"reasoner" yaml:"reasoner"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	PolicyCfg    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
	SnapshotsCfg SnapshotsConfig `mapstructure:"snapshots" yaml:"snapshots"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Reasoner() ReasonerConfig   { return c.ReasonerCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Policy() PolicyConfig       { return c.PolicyCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) Snapshots() SnapshotsConfig { return c.SnapshotsCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig configures the headless Chrome device.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	// SingleTab keeps popups and target=_blank links in the current tab.
	SingleTab         bool          `mapstructure:"single_tab" yaml:"single_tab"`
	CaptureDOMSummary bool          `mapstructure:"capture_dom_summary" yaml:"capture_dom_summary"`
	ExtraFlags        []string      `mapstructure:"extra_flags" yaml:"extra_flags"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
}

// ReasonerConfig configures the computer-use reasoning service and the
// state machine that talks to it.
type ReasonerConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Model             string        `mapstructure:"model" yaml:"model"`
	DisplayWidth      int           `mapstructure:"display_width" yaml:"display_width"`
	DisplayHeight     int           `mapstructure:"display_height" yaml:"display_height"`
	Environment       string        `mapstructure:"environment" yaml:"environment"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	Instructions    string `mapstructure:"instructions" yaml:"instructions"`
	StopOnMessage   bool   `mapstructure:"stop_on_message" yaml:"stop_on_message"`
	AutoConfirmText string `mapstructure:"auto_confirm_text" yaml:"auto_confirm_text"`
	// ExtendedActions forwards double-click counts and drag paths instead of
	// flattening them.
	ExtendedActions     bool `mapstructure:"extended_actions" yaml:"extended_actions"`
	KeepThreadOnMessage bool `mapstructure:"keep_thread_on_message" yaml:"keep_thread_on_message"`
}

// AgentConfig bounds each run.
type AgentConfig struct {
	MaxSteps    int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// RunTimeout is applied to goals that do not carry their own; zero leaves them unbounded.
	RunTimeout  time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Scopes      []string      `mapstructure:"scopes" yaml:"scopes"`
	// Concurrency caps parallel runs in batch mode.
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// GrantedScopes parses Scopes.
func (a AgentConfig) GrantedScopes() ([]schemas.Scope, error) {
	return schemas.ParseScopes(a.Scopes)
}

const (
	PolicyModeAllowAll = "allow_all"
	PolicyModeRego     = "rego"
)

// PolicyConfig selects the action policy.
type PolicyConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
	// File optionally replaces the built-in Rego module.
	File string `mapstructure:"file" yaml:"file"`
}

const (
	StoreNone     = "none"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// StoreConfig selects where run and step records go.
type StoreConfig struct {
	Type        string `mapstructure:"type" yaml:"type"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
	AutoMigrate bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// SnapshotsConfig controls archiving of observation images.
type SnapshotsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Path       string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autopilot")
	v.SetDefault("logger.log_file", "autopilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.post_load_wait", "300ms")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.single_tab", true)
	v.SetDefault("browser.capture_dom_summary", true)
	v.SetDefault("browser.debug", false)

	// -- Reasoner --
	v.SetDefault("reasoner.provider", "openai")
	v.SetDefault("reasoner.base_url", "https://api.openai.com/v1")
	v.SetDefault("reasoner.model", "computer-use-preview")
	v.SetDefault("reasoner.display_width", 1280)
	v.SetDefault("reasoner.display_height", 800)
	v.SetDefault("reasoner.environment", "browser")
	v.SetDefault("reasoner.request_timeout", "120s")
	v.SetDefault("reasoner.max_retries", 0)
	v.SetDefault("reasoner.requests_per_second", 0)
	v.SetDefault("reasoner.stop_on_message", true)
	v.SetDefault("reasoner.auto_confirm_text", "")
	v.SetDefault("reasoner.extended_actions", false)
	v.SetDefault("reasoner.keep_thread_on_message", false)

	// -- Agent --
	v.SetDefault("agent.max_steps", 40)
	v.SetDefault("agent.step_timeout", "20s")
	v.SetDefault("agent.run_timeout", "0s")
	v.SetDefault("agent.scopes", []string{string(schemas.ScopeNavigate)})
	v.SetDefault("agent.concurrency", 2)

	// -- Policy --
	v.SetDefault("policy.mode", PolicyModeRego)

	// -- Persistence --
	v.SetDefault("store.type", StoreFile)
	v.SetDefault("store.dir", "~/.autopilot/runs")
	v.SetDefault("store.sqlite_path", "~/.autopilot/autopilot.db")
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("snapshots.enabled", true)
	v.SetDefault("snapshots.dir", "~/.autopilot/snapshots")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9464")
	v.SetDefault("metrics.path", "/metrics")
}

// NewConfigFromViper unmarshals, expands and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// The reasoning service keeps its conventional variable names.
	_ = v.BindEnv("reasoner.api_key", "AUTOPILOT_REASONER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("reasoner.base_url", "AUTOPILOT_REASONER_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("reasoner.model", "AUTOPILOT_REASONER_MODEL", "OPENAI_CUA_MODEL")
	_ = v.BindEnv("store.postgres_url", "AUTOPILOT_STORE_POSTGRES_URL", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.LoggerCfg.LogFile,
		&c.StoreCfg.Dir,
		&c.StoreCfg.SQLitePath,
		&c.SnapshotsCfg.Dir,
		&c.PolicyCfg.File,
		&c.BrowserCfg.ExecPath,
	} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// The reasoner API key is checked where the client is built, so that
// commands which never reach the service do not need one.
func (c *Config) Validate() error {
	if c.AgentCfg.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.AgentCfg.StepTimeout <= 0 {
		return fmt.Errorf("agent.step_timeout must be positive")
	}
	if c.AgentCfg.RunTimeout < 0 {
		return fmt.Errorf("agent.run_timeout must not be negative")
	}
	if c.AgentCfg.Concurrency <= 0 {
		return fmt.Errorf("agent.concurrency must be a positive integer")
	}
	if _, err := c.AgentCfg.GrantedScopes(); err != nil {
		return fmt.Errorf("agent.scopes: %w", err)
	}
	if c.BrowserCfg.ViewportWidth <= 0 || c.BrowserCfg.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.BrowserCfg.ViewportWidth, c.BrowserCfg.ViewportHeight)
	}
	if c.ReasonerCfg.DisplayWidth <= 0 || c.ReasonerCfg.DisplayHeight <= 0 {
		return fmt.Errorf("reasoner display must be positive, got %dx%d", c.ReasonerCfg.DisplayWidth, c.ReasonerCfg.DisplayHeight)
	}
	if c.ReasonerCfg.MaxRetries < 0 {
		return fmt.Errorf("reasoner.max_retries must not be negative")
	}
	if !strings.EqualFold(c.ReasonerCfg.Provider, "openai") {
		return fmt.Errorf("unsupported reasoner.provider %q", c.ReasonerCfg.Provider)
	}

	switch c.PolicyCfg.Mode {
	case PolicyModeAllowAll, PolicyModeRego:
	default:
		return fmt.Errorf("unknown policy.mode %q", c.PolicyCfg.Mode)
	}

	switch c.StoreCfg.Type {
	case StoreNone:
	case StoreFile:
		if c.StoreCfg.Dir == "" {
			return fmt.Errorf("store.dir is required for the file store")
		}
	case StoreSQLite:
		if c.StoreCfg.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	case StorePostgres:
		if c.StoreCfg.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store.type %q", c.StoreCfg.Type)
	}

	if c.SnapshotsCfg.Enabled && c.SnapshotsCfg.Dir == "" {
		return fmt.Errorf("snapshots.dir is required when snapshots are enabled")
	}
	return nil
}
