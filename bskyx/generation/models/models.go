package models

import "strings"

// ModelConfig holds configuration for a specific model
type ModelConfig struct {
	Name             string
	ID               string
	DefaultMaxTokens int // sent when neither the request nor the provider sets a limit
	SupportsTools    bool
	SupportsJSONMode bool
}

// ConfigFor returns the default configuration for a model id.
func ConfigFor(model string) ModelConfig {
	id := strings.ToLower(model)
	switch {
	case strings.HasPrefix(id, "gpt-4o-mini"):
		return ModelConfig{
			Name:             "GPT-4o mini",
			ID:               model,
			DefaultMaxTokens: 1024,
			SupportsTools:    true,
			SupportsJSONMode: true,
		}
	case strings.HasPrefix(id, "gpt-4o"):
		return ModelConfig{
			Name:             "GPT-4o",
			ID:               model,
			DefaultMaxTokens: 1024,
			SupportsTools:    true,
			SupportsJSONMode: true,
		}
	case strings.HasPrefix(id, "gpt-4.1"):
		return ModelConfig{
			Name:             "GPT-4.1",
			ID:               model,
			DefaultMaxTokens: 1024,
			SupportsTools:    true,
			SupportsJSONMode: true,
		}
	default:
		// Unknown OpenAI-compatible model; assume plain chat and let the backend pick the length.
		return ModelConfig{
			Name: model,
			ID:   model,
		}
	}
}
