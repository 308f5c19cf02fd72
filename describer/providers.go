package describer

import (
	"slices"
	"sort"
)

// Provider describes a remote vision provider known to the engine.
type Provider struct {
	Name         string
	DisplayName  string
	APIKeyEnv    string
	DefaultModel string
	Models       []string
}

var providers = map[string]Provider{
	"gemini": {
		Name:         "gemini",
		DisplayName:  "Google Gemini",
		APIKeyEnv:    "GEMINI_API_KEY",
		DefaultModel: "gemini-2.0-flash",
		Models: []string{
			"gemini-2.0-flash",
			"gemini-1.5-flash",
			"gemini-1.5-flash-8b",
			"gemini-1.5-pro",
		},
	},
	"openai": {
		Name:         "openai",
		DisplayName:  "OpenAI",
		APIKeyEnv:    "OPENAI_API_KEY",
		DefaultModel: "gpt-4o",
		Models: []string{
			"gpt-4o",
			"gpt-4o-mini",
			"gpt-4-turbo",
			"gpt-4-vision-preview",
		},
	},
	"claude": {
		Name:         "claude",
		DisplayName:  "Anthropic Claude",
		APIKeyEnv:    "ANTHROPIC_API_KEY",
		DefaultModel: "claude-3-5-sonnet-20241022",
		Models: []string{
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
			"claude-3-opus-20240229",
		},
	},
	"openrouter": {
		Name:         "openrouter",
		DisplayName:  "OpenRouter",
		APIKeyEnv:    "OPENROUTER_API_KEY",
		DefaultModel: "anthropic/claude-3.5-sonnet",
		Models: []string{
			"anthropic/claude-3.5-sonnet",
			"openai/gpt-4o",
			"openai/gpt-4o-mini",
			"google/gemini-pro-1.5",
		},
	},
	// Local servers take any model they have loaded.
	"ollama": {
		Name:         "ollama",
		DisplayName:  "Ollama",
		DefaultModel: "llava",
	},
	"llama": {
		Name:         "llama",
		DisplayName:  "llama.cpp server",
		DefaultModel: "llava",
	},
}

// LookupProvider returns the catalogue entry for name.
func LookupProvider(name string) (Provider, bool) {
	p, ok := providers[name]
	return p, ok
}

// ProviderNames returns the names of all known providers in sorted order.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Local reports whether the provider runs without an API key.
func (p Provider) Local() bool { return p.APIKeyEnv == "" }

// SupportsModel reports whether model can be used with p. Local providers
// accept any non-empty model name.
func (p Provider) SupportsModel(model string) bool {
	if model == "" {
		return false
	}
	if p.Local() {
		return true
	}
	return slices.Contains(p.Models, model)
}
