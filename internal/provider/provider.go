// Package provider abstracts the hosted completion service behind a small
// interface so the pipeline can run against OpenAI-compatible endpoints,
// Anthropic, or an offline mock.
package provider

import (
	"context"
	"fmt"
)

type CompletionProvider interface {
	Model() string
	// Complete sends one system+user prompt pair and returns the model's
	// free-form text answer.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// MockProvider answers without any external call, for offline development
// and tests.
type MockProvider struct{}

func (MockProvider) Model() string { return "mock-analyst" }

func (MockProvider) Complete(_ context.Context, _, prompt string) (string, error) {
	return fmt.Sprintf("(mock) I received your question: %q", prompt), nil
}
