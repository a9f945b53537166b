// Package memory is an in-process vector index used by tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// Repo implements domain.VectorIndex over a map. Safe for concurrent use.
type Repo struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	order   []string
}

var _ domain.VectorIndex = (*Repo)(nil)

// New creates an empty index.
func New() *Repo {
	return &Repo{records: make(map[string]domain.Record)}
}

// Upsert stores a copy of rec, replacing any record with the same id.
func (r *Repo) Upsert(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return domain.NewServiceError(domain.ErrIndexService, "upsert", err)
	}
	if err := rec.Validate(); err != nil {
		return domain.NewServiceError(domain.ErrIndexService, "upsert", err)
	}

	rec.Vector = slices.Clone(rec.Vector)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = rec
	return nil
}

// Query ranks every stored record by cosine similarity.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewServiceError(domain.ErrIndexService, "query", err)
	}
	if len(vector) == 0 {
		return nil, domain.NewServiceError(domain.ErrIndexService, "query", errors.New("vector is required"))
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Match, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if len(rec.Vector) != len(vector) {
			return nil, domain.NewServiceError(domain.ErrIndexService, "query",
				fmt.Errorf("record %s: %w", id, domain.ErrDimensionMismatch))
		}
		matches = append(matches, domain.Match{
			ID:    id,
			Score: domain.CosineSimilarity(vector, rec.Vector),
			Text:  rec.Text,
		})
	}
	return domain.TopMatches(matches, topK), nil
}

// Len returns the number of stored records.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Get returns the record stored under id.
func (r *Repo) Get(id string) (domain.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// IDs returns record ids in first-insertion order.
func (r *Repo) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Ping always succeeds; the index lives in process.
func (r *Repo) Ping(_ context.Context) error { return nil }
