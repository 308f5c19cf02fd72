package openai

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriskillpack/alttagger/describer"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "A golden retriever on a beach"},
    "finish_reason": "stop"
  }]
}`

func newServer(t *testing.T, status int, reply string, seen *string, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		*seen = string(body)
		*auth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDescribeImage(t *testing.T) {
	var seen, auth string
	srv := newServer(t, http.StatusOK, completion, &seen, &auth)

	o := Init("test-key", srv.URL+"/", srv.Client())
	assert.Equal(t, "openai", o.Name())

	text, err := o.DescribeImage(t.Context(), describer.Request{
		Image:  describer.Image{Data: []byte("png"), MIMEType: "image/png"},
		Prompt: "Describe it",
		Model:  "gpt-4o",
	})
	require.NoError(t, err)
	assert.Equal(t, "A golden retriever on a beach", text)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Contains(t, seen, `"model":"gpt-4o"`)
	assert.Contains(t, seen, "data:image/png;base64,cG5n")
	assert.Contains(t, seen, "Describe it")
	assert.Contains(t, seen, `"max_tokens":50`)
}

func TestOpenRouter(t *testing.T) {
	var seen, auth string
	srv := newServer(t, http.StatusOK, completion, &seen, &auth)

	o := InitOpenRouter("or-key", srv.URL+"/", srv.Client())
	assert.Equal(t, "openrouter", o.Name())

	_, err := o.DescribeImage(t.Context(), describer.Request{Model: "openai/gpt-4o-mini", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer or-key", auth)
	assert.Contains(t, seen, `"model":"openai/gpt-4o-mini"`)
}

func TestDescribeImageError(t *testing.T) {
	var seen, auth string
	srv := newServer(t, http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, &seen, &auth)

	o := Init("test-key", srv.URL+"/", srv.Client())
	_, err := o.DescribeImage(t.Context(), describer.Request{Model: "gpt-4o", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai")
}

func TestDescribeImageEmpty(t *testing.T) {
	var seen, auth string
	srv := newServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4o","choices":[]}`, &seen, &auth)

	o := Init("test-key", srv.URL+"/", srv.Client())
	_, err := o.DescribeImage(t.Context(), describer.Request{Model: "gpt-4o", Prompt: "x"})
	assert.ErrorIs(t, err, describer.ErrEmptyResponse)
}
