package llm

import "context"

// Request is a single text completion request
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting reported by a completion backend
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completion is the result of a completion call. Usage is nil when the
// backend did not report it.
type Completion struct {
	Text      string
	RequestID string
	Model     string
	Usage     *Usage
}

// Completer is a text completion backend.
// Errors returned by Complete wrap domain.ErrCompletionProvider.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
