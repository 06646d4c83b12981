package ports

import "context"

// Prompt is a chat prompt with an optional system part.
type Prompt struct {
	System string
	User   string
}

// StreamHandler receives text fragments in order. Returning an error aborts the stream.
type StreamHandler func(fragment string) error

// LLM is the language model collaborator.
type LLM interface {
	// Complete returns a single completion.
	Complete(ctx context.Context, p Prompt) (string, error)
	// Stream delivers fragments to h and returns the concatenated text.
	Stream(ctx context.Context, p Prompt, h StreamHandler) (string, error)
}
