package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/config"
)

// New builds the model client selected by configuration.
func New(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.RequestTimeout, logger), nil
	case "openai":
		return NewOpenAIClient(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.RequestTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
