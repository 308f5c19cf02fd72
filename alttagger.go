// Package alttagger generates accessibility alt text for a library of images
// using a remote or local vision model.
package alttagger

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chriskillpack/alttagger/describer"
	"github.com/chriskillpack/alttagger/internal/claude"
	"github.com/chriskillpack/alttagger/internal/gemini"
	"github.com/chriskillpack/alttagger/internal/llama"
	"github.com/chriskillpack/alttagger/internal/ollama"
	"github.com/chriskillpack/alttagger/internal/openai"
)

type InitOptions struct {
	Provider string

	APIKey  string // required for remote providers
	BaseURL string // overrides the provider's default endpoint

	LlamaServer  string
	LlamaSeed    int
	OllamaServer string

	HttpClient *http.Client // if nil uses http.DefaultClient
}

type Tagger struct {
	describer.Describer
}

func Init(ctx context.Context, tio InitOptions) (*Tagger, error) {
	t := &Tagger{}

	httpClient := tio.HttpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if tio.Provider == "" {
		return nil, fmt.Errorf("no backend selected")
	}
	p, ok := describer.LookupProvider(tio.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", tio.Provider)
	}
	if !p.Local() && tio.APIKey == "" {
		return nil, fmt.Errorf("%s requires an API key, set %s", p.DisplayName, p.APIKeyEnv)
	}

	switch p.Name {
	case "gemini":
		g, err := gemini.Init(ctx, tio.APIKey, tio.BaseURL, httpClient)
		if err != nil {
			return nil, err
		}
		t.Describer = g
	case "openai":
		t.Describer = openai.Init(tio.APIKey, tio.BaseURL, httpClient)
	case "openrouter":
		t.Describer = openai.InitOpenRouter(tio.APIKey, tio.BaseURL, httpClient)
	case "claude":
		t.Describer = claude.Init(tio.APIKey, tio.BaseURL, httpClient)
	case "ollama":
		if tio.OllamaServer == "" {
			return nil, fmt.Errorf("ollama backend needs a server address")
		}
		t.Describer = ollama.Init(tio.OllamaServer, httpClient)
	case "llama":
		if tio.LlamaServer == "" {
			return nil, fmt.Errorf("llama backend needs a server address")
		}
		t.Describer = llama.Init(tio.LlamaServer, tio.LlamaSeed, httpClient)
	}

	return t, nil
}
