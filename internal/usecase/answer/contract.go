package answer

import (
	"context"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// Embedder vectorizes the query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever returns the chunks closest to a query vector.
type Retriever interface {
	Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error)
}

// PromptReader loads the system prompt; it is read on every query.
type PromptReader interface {
	Read(path string) (string, error)
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, input, instructions string) (domain.Generation, error)
}
