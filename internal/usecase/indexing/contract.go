package indexing

import (
	"context"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// DocumentReader loads the source document as text.
type DocumentReader interface {
	Read(path string) (string, error)
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index receives the chunk records.
type Index interface {
	Upsert(ctx context.Context, rec domain.Record) error
}
