package domain

import "context"

// Generator produces text from a model input and a separate instruction channel.
type Generator interface {
	Generate(ctx context.Context, input, instructions string) (Generation, error)
}

// Generation is the model output with token accounting.
type Generation struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}
