// Package claude is a describer for the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/chriskillpack/alttagger/describer"
)

const (
	APIBaseURL = "https://api.anthropic.com"
	apiVersion = "2023-06-01"
)

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type claude struct {
	httpClient *resty.Client
}

var _ describer.Describer = &claude{}

// Init returns a Claude backend. An empty baseURL uses APIBaseURL.
func Init(apiKey, baseURL string, httpClient *http.Client) *claude {
	if baseURL == "" {
		baseURL = APIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &claude{
		httpClient: resty.NewWithClient(httpClient).
			SetBaseURL(baseURL).
			SetHeaders(map[string]string{
				"x-api-key":         apiKey,
				"anthropic-version": apiVersion,
				"Content-Type":      "application/json",
			}),
	}
}

func (c *claude) Name() string { return "claude" }

// handleError turns a failing response (>399 status code) into an error.
// Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		if e, ok := res.Error().(*apiError); ok && e.Error.Message != "" {
			return res, fmt.Errorf("claude: %s (status: %d)", e.Error.Message, res.StatusCode())
		}
		return res, fmt.Errorf("claude: request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}

	return res, nil
}

func (c *claude) DescribeImage(ctx context.Context, req describer.Request) (string, error) {
	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   describer.MaxTokens,
		Temperature: describer.Temperature,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: req.Image.MIMEType,
						Data:      base64.StdEncoding.EncodeToString(req.Image.Data),
					},
				},
				{Type: "text", Text: req.Prompt},
			},
		}},
	}

	result := &messagesResponse{}
	_, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiError{}).
		Post("/v1/messages"))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", describer.ErrEmptyResponse
	}
	return sb.String(), nil
}

func (c *claude) IsHealthy(ctx context.Context) error {
	_, err := handleError(c.httpClient.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Get("/v1/models"))
	return err
}
