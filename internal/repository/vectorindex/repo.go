package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragmail/internal/db"
	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

const (
	contentField = "__content"
	vectorField  = "__vector"
)

// store is the consumer interface for the vector index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	VectorDim(ctx context.Context, name, field string) (int, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Options configures key layout and index shape.
type Options struct {
	// KeyPrefix namespaces every key, e.g. "ragmail:".
	KeyPrefix string
	// Name is the logical index name; chunk keys live under KeyPrefix+Name+":".
	Name string
	HNSW HNSWConfig
	// TextField adds a TEXT schema field for the chunk text. valkey-search
	// 1.0 rejects TEXT, so it is only enabled for Redis.
	TextField bool
}

// Repo implements domain.VectorIndex and domain.IndexInitializer on top of
// Redis/Valkey hashes and an FT vector index.
type Repo struct {
	store store
	opts  Options
}

var (
	_ domain.VectorIndex      = (*Repo)(nil)
	_ domain.IndexInitializer = (*Repo)(nil)
)

// New creates a vector index repository.
func New(s store, opts Options) *Repo {
	if opts.Name == "" {
		opts.Name = "policy"
	}
	return &Repo{store: s, opts: opts}
}

// EnsureIndex creates the FT index for vectors of the given dimension if it
// does not exist yet. An existing index built for another dimension is an
// ErrDimensionMismatch: its search would silently skip the new hashes.
func (r *Repo) EnsureIndex(ctx context.Context, dim int) error {
	const op = "ensure index"

	name := r.indexName()
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, err)
	}
	if exists {
		return r.checkDim(ctx, name, dim)
	}

	def, err := r.buildIndex(dim)
	if err != nil {
		return domain.NewServiceError(domain.ErrInvalidConfiguration, op, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		metrics.IndexOperationsTotal.WithLabelValues("create", metrics.Status(err)).Inc()
		return domain.NewServiceError(domain.ErrIndexService, op, err)
	}
	metrics.IndexOperationsTotal.WithLabelValues("create", metrics.Status(nil)).Inc()
	return nil
}

func (r *Repo) checkDim(ctx context.Context, name string, dim int) error {
	const op = "ensure index"

	got, err := r.store.VectorDim(ctx, name, vectorField)
	if err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, err)
	}
	if got > 0 && got != dim {
		return domain.NewServiceError(domain.ErrIndexService, op,
			fmt.Errorf("%w: index %s has DIM %d, embeddings have %d; drop the index and re-index",
				domain.ErrDimensionMismatch, name, got, dim))
	}
	return nil
}

// Upsert stores the record under its id, replacing any previous value.
func (r *Repo) Upsert(ctx context.Context, rec domain.Record) error {
	const op = "upsert"

	if err := rec.Validate(); err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, err)
	}

	err := r.store.HSet(ctx, r.key(rec.ID), buildHashFields(rec))
	metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		return domain.NewServiceError(domain.ErrIndexService, op, fmt.Errorf("hset %s: %w", rec.ID, err))
	}
	return nil
}

// Query returns up to topK nearest records by cosine similarity, best first.
// A missing FT index means nothing was indexed yet and yields no matches.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	const op = "query"

	if len(vector) == 0 {
		return nil, domain.NewServiceError(domain.ErrIndexService, op, errors.New("vector is required"))
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		VectorField:  vectorField,
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{contentField},
	})
	if errors.Is(err, db.ErrIndexNotFound) {
		metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(nil)).Inc()
		return []domain.Match{}, nil
	}
	metrics.IndexOperationsTotal.WithLabelValues(op, metrics.Status(err)).Inc()
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrIndexService, op, err)
	}

	matches := make([]domain.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		matches = append(matches, domain.Match{
			ID:    strings.TrimPrefix(e.Key, r.recordPrefix()),
			Score: e.Score,
			Text:  e.Fields[contentField],
		})
	}
	return matches, nil
}

func (r *Repo) buildIndex(dim int) (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName()).Prefix(r.recordPrefix())
	if r.opts.TextField {
		b = b.Text(contentField)
	}
	return b.VectorHNSW(vectorField, dim, db.DistanceCosine, r.opts.HNSW.M, r.opts.HNSW.EFConstruct).Build()
}

func (r *Repo) recordPrefix() string {
	return r.opts.KeyPrefix + r.opts.Name + ":"
}

func (r *Repo) key(id string) string {
	return r.recordPrefix() + id
}

func (r *Repo) indexName() string {
	return r.recordPrefix() + "idx"
}
