package describer

import (
	"context"
	"errors"
)

// DefaultPrompt is the instruction sent with every image unless the caller
// supplies its own.
const DefaultPrompt = `You are an accessibility expert. Generate ONLY the alt text for this image - no explanations, no options, just the final alt text. Describe what is shown objectively. For people, describe only their actions, clothing, or position - never mention age, attractiveness, weight, or other physical attributes that could be considered judgmental. Keep it under 125 characters. Do not include phrases like "image of" or "picture of". Return only the alt text string, nothing else.`

const (
	// MaxTokens bounds the length of a generated description.
	MaxTokens = 50

	Temperature = 0.1
)

// ErrEmptyResponse is returned by a Describer when the model answered but
// produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Image is an image ready to be sent to a model.
type Image struct {
	Path     string
	Data     []byte
	MIMEType string
}

// Request is a single describe call.
type Request struct {
	Image  Image
	Prompt string
	Model  string
}

// Describer describes an image using a specific LLM provider.
type Describer interface {
	// Name returns the provider name, e.g. "gemini" or "ollama".
	Name() string

	// DescribeImage returns the alt text for the image in req. The provided
	// ctx is used as a parent context for the request to the LLM server and
	// bounds the whole call.
	DescribeImage(ctx context.Context, req Request) (string, error)

	// IsHealthy returns nil if the provider can be reached with the configured
	// credentials.
	IsHealthy(ctx context.Context) error
}
