// File: internal/llmclient/factory_test.go
package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autopilot/internal/config"
)

func TestNewService(t *testing.T) {
	base := config.NewDefaultConfig().Reasoner()
	base.APIKey = "sk-test"

	t.Run("OpenAI", func(t *testing.T) {
		svc, err := NewService(base, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.IsType(t, &ResponsesClient{}, svc)
	})

	t.Run("ProviderIsCaseInsensitive", func(t *testing.T) {
		cfg := base
		cfg.Provider = "OpenAI"
		_, err := NewService(cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
	})

	t.Run("Unsupported", func(t *testing.T) {
		cfg := base
		cfg.Provider = "gemini"
		_, err := NewService(cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported reasoning provider "gemini"`)
	})

	t.Run("MissingKey", func(t *testing.T) {
		cfg := base
		cfg.APIKey = ""
		svc, err := NewService(cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Nil(t, svc)
	})
}
