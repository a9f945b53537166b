package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// Usage collects token usage for one operation. The caller puts a pointer
// into the context, the pipeline adds to it, the caller reads it for logging.
// Safe for concurrent use.
type Usage struct {
	embedding atomic.Int64
	input     atomic.Int64
	output    atomic.Int64
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbedding records embedding tokens.
func (u *Usage) AddEmbedding(n int) {
	if u != nil {
		u.embedding.Add(int64(n))
	}
}

// AddGeneration records generation tokens.
func (u *Usage) AddGeneration(in, out int) {
	if u != nil {
		u.input.Add(int64(in))
		u.output.Add(int64(out))
	}
}

// EmbeddingTokens returns the embedding tokens recorded so far.
func (u *Usage) EmbeddingTokens() int { return int(u.embedding.Load()) }

// InputTokens returns the generation input tokens recorded so far.
func (u *Usage) InputTokens() int { return int(u.input.Load()) }

// OutputTokens returns the generation output tokens recorded so far.
func (u *Usage) OutputTokens() int { return int(u.output.Load()) }

// TokenCounts is a point-in-time copy of a Usage.
type TokenCounts struct {
	Embedding int
	Input     int
	Output    int
}

// Snapshot copies the current counters. A nil Usage yields zero counts.
func (u *Usage) Snapshot() TokenCounts {
	if u == nil {
		return TokenCounts{}
	}
	return TokenCounts{
		Embedding: u.EmbeddingTokens(),
		Input:     u.InputTokens(),
		Output:    u.OutputTokens(),
	}
}
