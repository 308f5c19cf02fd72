package gemini

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/chriskillpack/alttagger/describer"
)

type gemini struct {
	client *genai.Client
}

var _ describer.Describer = &gemini{}

// Init creates a Gemini API client. baseURL is only set in tests.
func Init(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &gemini{client: client}, nil
}

func (g *gemini) Name() string { return "gemini" }

func (g *gemini) DescribeImage(ctx context.Context, req describer.Request) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		{InlineData: &genai.Blob{Data: req.Image.Data, MIMEType: req.Image.MIMEType}},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(describer.Temperature)),
		MaxOutputTokens: int32(describer.MaxTokens),
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", describer.ErrEmptyResponse
	}

	return result.Text(), nil
}

func (g *gemini) IsHealthy(ctx context.Context) error {
	p, _ := describer.LookupProvider("gemini")
	if _, err := g.client.Models.Get(ctx, p.DefaultModel, nil); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	return nil
}
