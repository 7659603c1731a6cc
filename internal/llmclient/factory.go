// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/internal/config"
)

const ProviderOpenAI = "openai"

// NewService builds the reasoning service client for cfg.Provider.
func NewService(cfg config.ReasonerConfig, logger *zap.Logger, opts ...ClientOption) (Service, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		c, err := NewResponsesClient(cfg, logger, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported reasoning provider %q, supported: [%s]", cfg.Provider, ProviderOpenAI)
	}
}
