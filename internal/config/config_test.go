// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "autopilot", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 1280, cfg.Browser().ViewportWidth)
	assert.Equal(t, 300*time.Millisecond, cfg.Browser().PostLoadWait)
	assert.Equal(t, "computer-use-preview", cfg.Reasoner().Model)
	assert.True(t, cfg.Reasoner().StopOnMessage)
	assert.False(t, cfg.Reasoner().ExtendedActions)
	assert.Equal(t, 40, cfg.Agent().MaxSteps)
	assert.Equal(t, 20*time.Second, cfg.Agent().StepTimeout)
	assert.Equal(t, []string{"navigate"}, cfg.Agent().Scopes)
	assert.Equal(t, PolicyModeRego, cfg.Policy().Mode)
	assert.Equal(t, StoreFile, cfg.Store().Type)
	assert.False(t, cfg.Metrics().Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics().Path)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate(), "defaults must validate")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero steps", func(c *Config) { c.AgentCfg.MaxSteps = 0 }, "agent.max_steps"},
		{"zero step timeout", func(c *Config) { c.AgentCfg.StepTimeout = 0 }, "agent.step_timeout"},
		{"negative run timeout", func(c *Config) { c.AgentCfg.RunTimeout = -time.Second }, "agent.run_timeout"},
		{"zero concurrency", func(c *Config) { c.AgentCfg.Concurrency = 0 }, "agent.concurrency"},
		{"unknown scope", func(c *Config) { c.AgentCfg.Scopes = []string{"teleport"} }, "agent.scopes"},
		{"bad viewport", func(c *Config) { c.BrowserCfg.ViewportHeight = 0 }, "viewport"},
		{"bad display", func(c *Config) { c.ReasonerCfg.DisplayWidth = -1 }, "display"},
		{"negative retries", func(c *Config) { c.ReasonerCfg.MaxRetries = -1 }, "max_retries"},
		{"unknown provider", func(c *Config) { c.ReasonerCfg.Provider = "gemini" }, "reasoner.provider"},
		{"unknown policy", func(c *Config) { c.PolicyCfg.Mode = "deny_all" }, "policy.mode"},
		{"unknown store", func(c *Config) { c.StoreCfg.Type = "redis" }, "store.type"},
		{"file store without dir", func(c *Config) { c.StoreCfg.Dir = "" }, "store.dir"},
		{"sqlite without path", func(c *Config) {
			c.StoreCfg.Type = StoreSQLite
			c.StoreCfg.SQLitePath = ""
		}, "store.sqlite_path"},
		{"postgres without url", func(c *Config) { c.StoreCfg.Type = StorePostgres }, "store.postgres_url"},
		{"snapshots without dir", func(c *Config) { c.SnapshotsCfg.Dir = "" }, "snapshots.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("store none needs nothing", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.StoreCfg = StoreConfig{Type: StoreNone}
		cfg.SnapshotsCfg.Enabled = false
		cfg.SnapshotsCfg.Dir = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestGrantedScopes(t *testing.T) {
	scopes, err := AgentConfig{Scopes: []string{"navigate", "Clipboard-Read"}}.GrantedScopes()
	require.NoError(t, err)
	assert.Equal(t, []schemas.Scope{schemas.ScopeNavigate, schemas.ScopeClipboardRead}, scopes)
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_CUA_MODEL", "")

	yamlConfig := []byte(`
logger:
  level: debug
agent:
  max_steps: 12
  step_timeout: 5s
  scopes: [navigate, clipboard_write]
reasoner:
  instructions: "Be brief."
  extended_actions: true
store:
  type: sqlite
  sqlite_path: ~/runs.db
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, 12, cfg.Agent().MaxSteps)
	assert.Equal(t, 5*time.Second, cfg.Agent().StepTimeout)
	assert.Equal(t, []string{"navigate", "clipboard_write"}, cfg.Agent().Scopes)
	assert.Equal(t, "Be brief.", cfg.Reasoner().Instructions)
	assert.True(t, cfg.Reasoner().ExtendedActions)
	assert.Equal(t, "sk-from-env", cfg.Reasoner().APIKey)
	// Defaults survive a partial file.
	assert.Equal(t, "computer-use-preview", cfg.Reasoner().Model)
	assert.Equal(t, 300*time.Millisecond, cfg.Browser().PostLoadWait)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "runs.db"), cfg.Store().SQLitePath)
	assert.Equal(t, filepath.Join(home, ".autopilot", "snapshots"), cfg.Snapshots().Dir)
}

func TestNewConfigFromViper_PrefersPrefixedKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-generic")
	t.Setenv("AUTOPILOT_REASONER_API_KEY", "sk-specific")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-specific", cfg.Reasoner().APIKey)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.type", "carrier_pigeon")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
