package ai

import "fmt"

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	OpenAIAPIKey  string
	OpenAIBaseURL string // e.g., "https://api.openai.com/v1"
	OpenAIModel   string // e.g., "gpt-4o-mini"
}

// NewGeneratorService creates a GeneratorService based on the config.
// This is the factory function - switch AI provider by changing config.Provider
func NewGeneratorService(cfg Config) (GeneratorService, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIService(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), nil

	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
