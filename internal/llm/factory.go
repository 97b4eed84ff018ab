package llm

import (
	"fmt"

	"mend/internal/config"
)

// NewFromConfig builds the client named by the llm config section.
func NewFromConfig(cfg *config.Config) (Client, error) {
	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid llm timeout: %w", err)
	}

	switch cfg.LLM.Provider {
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     timeout,
		}), nil

	case "openai", "openai-compatible":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     timeout,
		}), nil

	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLM.Provider)
	}
}
