// Package llm defines the vision model capability used by every pipeline
// stage, along with tolerant parsing of model output and call decorators.
package llm

import "context"

// Model is an opaque vision model: given an instruction and page images, return text.
type Model interface {
	Generate(ctx context.Context, instruction string, images []string) (string, error)
}

// Client is a Model that holds resources.
type Client interface {
	Model
	Close() error
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, instruction string, images []string) (string, error)

func (f ModelFunc) Generate(ctx context.Context, instruction string, images []string) (string, error) {
	return f(ctx, instruction, images)
}

// nopCloser turns a Model into a Client with a no-op Close.
type nopCloser struct{ Model }

func (nopCloser) Close() error { return nil }

// NopCloser wraps m as a Client.
func NopCloser(m Model) Client { return nopCloser{m} }
