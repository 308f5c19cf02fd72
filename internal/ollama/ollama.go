package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/chriskillpack/alttagger/describer"
)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollama struct {
	httpClient *resty.Client
}

var _ describer.Describer = &ollama{}

func Init(srvAddr string, httpClient *http.Client) *ollama {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ollama{
		httpClient: resty.NewWithClient(httpClient).SetBaseURL(srvAddr),
	}
}

func (o *ollama) Name() string { return "ollama" }

func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("ollama: request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}

func (o *ollama) DescribeImage(ctx context.Context, req describer.Request) (string, error) {
	result := &generateResponse{}
	_, err := handleError(o.httpClient.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:  req.Model,
			Prompt: req.Prompt,
			Images: []string{base64.StdEncoding.EncodeToString(req.Image.Data)},
			Options: map[string]any{
				"temperature": describer.Temperature,
				"num_predict": describer.MaxTokens,
			},
		}).
		SetResult(result).
		Post("/api/generate"))
	if err != nil {
		return "", err
	}
	if result.Response == "" {
		return "", describer.ErrEmptyResponse
	}
	return result.Response, nil
}

func (o *ollama) IsHealthy(ctx context.Context) error {
	_, err := handleError(o.httpClient.R().SetContext(ctx).Get("/api/tags"))
	return err
}
