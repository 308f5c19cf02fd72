package processing

import (
	"github.com/chriskillpack/alttagger/describer"
)

// Config is the per-step configuration.
type Config struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Prompt     string `json:"prompt,omitempty"`
	BatchSize  int    `json:"batch_size"`
	MaxRetries int    `json:"max_retries"`
}

// WithDefaults fills an empty Prompt with describer.DefaultPrompt and an empty
// Model with the provider's default model.
func (c Config) WithDefaults() Config {
	if c.Prompt == "" {
		c.Prompt = describer.DefaultPrompt
	}
	if c.Model == "" {
		if p, ok := describer.LookupProvider(c.Provider); ok {
			c.Model = p.DefaultModel
		}
	}
	return c
}

// Validate returns an ErrConfiguration error describing the first problem
// found.
func (c Config) Validate() error {
	if c.Provider == "" {
		return configErr("no provider selected")
	}
	if _, ok := describer.LookupProvider(c.Provider); !ok {
		return configErr("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return configErr("no model selected for provider %q", c.Provider)
	}
	if c.BatchSize < 1 {
		return configErr("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return configErr("max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
