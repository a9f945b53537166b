package domain

import (
	"context"
	"errors"
	"fmt"
)

// Record is a single (identifier, vector, text) triple stored in a vector index.
type Record struct {
	ID     string
	Vector []float32
	Text   string
}

// Validate checks that the record can be upserted.
func (r Record) Validate() error {
	if r.ID == "" {
		return errors.New("record id is required")
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("record %s: vector is required", r.ID)
	}
	return nil
}

// Match is a similarity hit; higher Score means more similar.
type Match struct {
	ID    string
	Score float64
	Text  string
}

// VectorIndex stores records and answers top-k similarity queries.
// Query returns matches ordered by descending score and an empty slice for an empty index.
type VectorIndex interface {
	Upsert(ctx context.Context, rec Record) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// IndexInitializer is implemented by backends that need an index created before the first upsert.
type IndexInitializer interface {
	EnsureIndex(ctx context.Context, dim int) error
}

// Texts returns the match texts in rank order.
func Texts(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Text
	}
	return out
}
