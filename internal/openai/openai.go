package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chriskillpack/alttagger/describer"
)

const OpenRouterBaseURL = "https://openrouter.ai/api/v1/"

type openai struct {
	oac  *oagc.Client
	name string
}

var _ describer.Describer = &openai{}

// Init returns an OpenAI backend. An empty baseURL talks to api.openai.com.
// The SDK's own retries are disabled, retrying is done by the caller.
func Init(apiKey, baseURL string, httpClient *http.Client) *openai {
	return newClient("openai", apiKey, baseURL, httpClient)
}

// InitOpenRouter returns a backend for OpenRouter's OpenAI compatible API.
func InitOpenRouter(apiKey, baseURL string, httpClient *http.Client) *openai {
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}
	return newClient("openrouter", apiKey, baseURL, httpClient,
		option.WithHeader("X-Title", "alttagger"),
	)
}

func newClient(name, apiKey, baseURL string, httpClient *http.Client, extra ...option.RequestOption) *openai {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	return &openai{
		oac:  oagc.NewClient(opts...),
		name: name,
	}
}

func (o *openai) Name() string { return o.name }

func dataURL(img describer.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (o *openai) DescribeImage(ctx context.Context, req describer.Request) (string, error) {
	params := oagc.ChatCompletionNewParams{
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessageParts(
				oagc.TextPart(req.Prompt),
				oagc.ImagePart(dataURL(req.Image)),
			),
		}),
		Model:       oagc.F(oagc.ChatModel(req.Model)),
		MaxTokens:   oagc.Int(describer.MaxTokens),
		Temperature: oagc.Float(describer.Temperature),
	}

	resp, err := o.oac.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", o.name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", describer.ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func (o *openai) IsHealthy(ctx context.Context) error {
	if _, err := o.oac.Models.List(ctx); err != nil {
		return fmt.Errorf("%s: %w", o.name, err)
	}
	return nil
}
