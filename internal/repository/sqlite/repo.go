// Package sqlite is a single-file vector index for local runs. Vectors are
// stored as FLOAT32 blobs and ranked by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kailas-cloud/ragmail/internal/db"
	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

// Repo implements domain.VectorIndex backed by SQLite.
type Repo struct {
	db *sql.DB
}

var _ domain.VectorIndex = (*Repo)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Repo, error) {
	if path == "" {
		return nil, domain.NewServiceError(domain.ErrInvalidConfiguration, "open sqlite", errors.New("path is required"))
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrIndexService, "open sqlite", err)
	}
	// modernc sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	repo, err := New(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing database handle and ensures the schema.
func New(ctx context.Context, conn *sql.DB) (*Repo, error) {
	if conn == nil {
		return nil, errors.New("sqlite: db is nil")
	}
	if err := ensureSchema(ctx, conn); err != nil {
		return nil, domain.NewServiceError(domain.ErrIndexService, "ensure schema", err)
	}
	return &Repo{db: conn}, nil
}

// Close releases the database handle.
func (r *Repo) Close() error {
	return r.db.Close()
}

// Ping checks that the database file is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Upsert inserts or replaces the record with the same id.
func (r *Repo) Upsert(ctx context.Context, rec domain.Record) error {
	const op = "upsert"

	if err := rec.Validate(); err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chunks(id, content, embedding) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			updated_at = unixepoch()`,
		rec.ID, rec.Text, db.EncodeVector(rec.Vector),
	)
	metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, fmt.Errorf("insert %s: %w", rec.ID, err))
	}
	return nil
}

// Query scans every stored chunk and returns the topK most similar.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	const op = "query"

	if len(vector) == 0 {
		return nil, domain.NewServiceError(domain.ErrIndexService, op, errors.New("vector is required"))
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	matches, err := r.scan(ctx, vector)
	metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrIndexService, op, err)
	}
	return domain.TopMatches(matches, topK), nil
}

// Count returns the number of stored chunks.
func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, domain.NewServiceError(domain.ErrIndexService, "count", err)
	}
	return n, nil
}

func (r *Repo) scan(ctx context.Context, vector []float32) ([]domain.Match, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, content, embedding FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		var (
			id, content string
			blob        []byte
		)
		if err := rows.Scan(&id, &content, &blob); err != nil {
			return nil, err
		}
		stored, err := db.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("chunk %s: %w: stored %d, query %d",
				id, domain.ErrDimensionMismatch, len(stored), len(vector))
		}
		matches = append(matches, domain.Match{
			ID:    id,
			Score: domain.CosineSimilarity(vector, stored),
			Text:  content,
		})
	}
	return matches, rows.Err()
}
