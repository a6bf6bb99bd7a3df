// Package llm is the language-model capability the conversation depends on.
package llm

import "context"

type Options struct {
	Temperature float32
	MaxTokens   int
	// JSON asks the model for a single JSON object.
	JSON bool
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
