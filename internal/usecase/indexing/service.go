package indexing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/domain/chunk"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

// Policy decides what a chunk failure does to the rest of the run.
type Policy string

const (
	// PolicyContinue records the failure and indexes the remaining chunks.
	PolicyContinue Policy = "continue"
	// PolicyAbort stops at the first failure.
	PolicyAbort Policy = "abort"
)

// Options tune an indexing run.
type Options struct {
	Policy  Policy
	Workers int // <= 1 means sequential
}

// Failure is a chunk that could not be indexed.
type Failure struct {
	Index   int
	ChunkID string
	Err     error
}

// Report summarises an indexing run.
type Report struct {
	Total    int
	Indexed  int
	Failures []Failure
	Duration time.Duration
}

// Failed returns the number of chunks that were not indexed.
func (r Report) Failed() int { return len(r.Failures) }

// Err joins the chunk failures, or returns nil when every chunk was indexed.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.ChunkID, f.Err))
	}
	return errors.Join(errs...)
}

// Service splits a document into chunks, embeds each one and upserts it
// under the id chunk_<index>.
type Service struct {
	reader   DocumentReader
	chunker  chunk.Chunker
	embedder Embedder
	index    Index
	opts     Options
	logger   *zap.Logger

	initMu   sync.Mutex
	initDone bool
}

// New creates an indexing service. If index also implements
// domain.IndexInitializer, the backing index is created on the first
// successful embedding using its dimension.
func New(
	reader DocumentReader, chunker chunk.Chunker, embedder Embedder, index Index,
	opts Options, logger *zap.Logger,
) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicyContinue
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reader:   reader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		opts:     opts,
		logger:   logger,
	}
}

// Run indexes the document at path.
func (s *Service) Run(ctx context.Context, path string) (Report, error) {
	text, err := s.reader.Read(path)
	if err != nil {
		return Report{}, fmt.Errorf("read source: %w", err)
	}
	s.logger.Info("Indexing document", zap.String("path", path), zap.Int("runes", len([]rune(text))))
	return s.IndexText(ctx, text)
}

// IndexText indexes already loaded text. Under PolicyAbort the first failure
// is returned together with the partial report.
func (s *Service) IndexText(ctx context.Context, text string) (Report, error) {
	start := time.Now()
	chunks := s.chunker.Split(text)
	report := Report{Total: len(chunks)}

	if len(chunks) == 0 {
		s.logger.Warn("Document produced no chunks")
		return report, nil
	}

	var err error
	if s.opts.Workers == 1 || len(chunks) == 1 {
		err = s.runSequential(ctx, chunks, &report)
	} else {
		err = s.runParallel(ctx, chunks, &report)
	}
	report.Duration = time.Since(start)

	s.logger.Info("Indexing finished",
		zap.Int("total", report.Total),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", report.Duration),
	)
	return report, err
}

func (s *Service) runSequential(ctx context.Context, chunks []chunk.Chunk, report *Report) error {
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.indexChunk(ctx, c); err != nil {
			report.Failures = append(report.Failures, Failure{Index: c.Index, ChunkID: c.ID(), Err: err})
			s.logFailure(c, err)
			if s.opts.Policy == PolicyAbort {
				return fmt.Errorf("chunk %s: %w", c.ID(), err)
			}
			continue
		}
		report.Indexed++
	}
	return nil
}

func (s *Service) runParallel(ctx context.Context, chunks []chunk.Chunk, report *Report) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	jobs := make(chan chunk.Chunk)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for range min(s.opts.Workers, len(chunks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				err := s.indexChunk(ctx, c)

				mu.Lock()
				if err == nil {
					report.Indexed++
					mu.Unlock()
					continue
				}
				// chunks cancelled after an abort are not failures of their own
				if firstErr != nil && errors.Is(err, context.Canceled) {
					mu.Unlock()
					continue
				}
				report.Failures = append(report.Failures, Failure{Index: c.Index, ChunkID: c.ID(), Err: err})
				if s.opts.Policy == PolicyAbort && firstErr == nil {
					firstErr = fmt.Errorf("chunk %s: %w", c.ID(), err)
					cancel(firstErr)
				}
				mu.Unlock()
				s.logFailure(c, err)
			}
		}()
	}

feed:
	for _, c := range chunks {
		select {
		case jobs <- c:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// workers finish out of order; report failures in document order
	slices.SortFunc(report.Failures, func(a, b Failure) int { return cmp.Compare(a.Index, b.Index) })

	if firstErr != nil {
		return firstErr
	}
	return context.Cause(ctx)
}

func (s *Service) indexChunk(ctx context.Context, c chunk.Chunk) error {
	res, err := s.embedder.Embed(ctx, c.Text)
	if err != nil {
		return err
	}
	if err := s.ensureIndex(ctx, len(res.Embedding)); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, domain.Record{ID: c.ID(), Vector: res.Embedding, Text: c.Text}); err != nil {
		return err
	}
	metrics.ChunksIndexedTotal.Inc()
	s.logger.Debug("Chunk indexed",
		zap.String("chunk_id", c.ID()),
		zap.Int("offset", c.Offset),
		zap.Int("length", len([]rune(c.Text))),
	)
	return nil
}

func (s *Service) ensureIndex(ctx context.Context, dim int) error {
	init, ok := s.index.(domain.IndexInitializer)
	if !ok {
		return nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initDone {
		return nil
	}
	if err := init.EnsureIndex(ctx, dim); err != nil {
		return err
	}
	s.initDone = true
	s.logger.Info("Vector index ready", zap.Int("dimensions", dim))
	return nil
}

func (s *Service) logFailure(c chunk.Chunk, err error) {
	s.logger.Error("Chunk indexing failed",
		zap.String("chunk_id", c.ID()),
		zap.Int("offset", c.Offset),
		zap.Error(err),
	)
}
