package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/config"
	dbredis "github.com/kailas-cloud/ragmail/internal/db/redis"
	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/domain/chunk"
	"github.com/kailas-cloud/ragmail/internal/domain/prompt"
	"github.com/kailas-cloud/ragmail/internal/repository/memory"
	"github.com/kailas-cloud/ragmail/internal/repository/source"
	sqliterepo "github.com/kailas-cloud/ragmail/internal/repository/sqlite"
	"github.com/kailas-cloud/ragmail/internal/repository/vectorindex"
	openaiTransport "github.com/kailas-cloud/ragmail/internal/transport/openai"
	"github.com/kailas-cloud/ragmail/internal/transport/responses"
	"github.com/kailas-cloud/ragmail/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/ragmail/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragmail/internal/usecase/health"
	"github.com/kailas-cloud/ragmail/internal/usecase/indexing"
)

// index is what the pipelines and the health check need from a vector store.
type index interface {
	domain.VectorIndex
	Ping(ctx context.Context) error
}

// app is the composition root shared by all commands.
type app struct {
	cfg     config.Config
	env     string
	logger  *zap.Logger
	closers []func()

	idx      index
	embedder *embeddinguc.InstrumentedEmbedder
}

// Close releases every client opened by the app, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// vectorIndex opens the configured vector store once per process.
func (a *app) vectorIndex(ctx context.Context) (index, error) {
	if a.idx != nil {
		return a.idx, nil
	}

	cfg := a.cfg.Index
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		store, err := dbredis.NewStore(dbredis.Config{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, domain.NewServiceError(domain.ErrIndexService, "connect", err)
		}
		a.closers = append(a.closers, store.Close)

		if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			return nil, domain.NewServiceError(domain.ErrIndexService, "connect", err)
		}
		a.logger.Info("Connected to vector store",
			zap.String("driver", cfg.Driver),
			zap.Strings("addrs", cfg.Addrs),
		)

		a.idx = &storeIndex{
			Repo: vectorindex.New(store, vectorindex.Options{
				KeyPrefix: cfg.KeyPrefix,
				Name:      cfg.Name,
				HNSW:      vectorindex.HNSWConfig{M: cfg.HNSWM, EFConstruct: cfg.HNSWEFConstruct},
				TextField: cfg.Driver == config.DriverRedis,
			}),
			store: store,
		}

	case config.DriverSQLite:
		repo, err := sqliterepo.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.logger.Info("Opened SQLite vector index", zap.String("path", cfg.SQLitePath))
		a.idx = repo

	case config.DriverMemory:
		a.idx = memory.New()

	default:
		return nil, fmt.Errorf("%w: unknown index driver %q", domain.ErrInvalidConfiguration, cfg.Driver)
	}
	return a.idx, nil
}

// storeIndex pairs the Redis-backed repository with its store for health pings.
type storeIndex struct {
	*vectorindex.Repo
	store *dbredis.Store
}

func (s *storeIndex) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// embeddingClient builds the embedder chain: go-openai transport, then the
// instrumented decorator.
func (a *app) embeddingClient() *embeddinguc.InstrumentedEmbedder {
	if a.embedder != nil {
		return a.embedder
	}
	cfg := a.cfg.Embedding
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     a.logger,
	})
	a.embedder = embeddinguc.NewInstrumentedEmbedder(base, cfg.Provider, cfg.Model, cfg.Dimensions, a.logger)
	return a.embedder
}

func (a *app) generator() domain.Generator {
	cfg := a.cfg.Generation
	if cfg.API == config.GenerationChat {
		return openaiTransport.NewChatGenerator(&openaiTransport.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    a.logger,
		})
	}
	return responses.NewGenerator(&responses.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Logger:    a.logger,
	})
}

func (a *app) indexingService(ctx context.Context) (*indexing.Service, error) {
	chunker, err := chunk.New(a.cfg.Source.ChunkSize, a.cfg.Source.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	idx, err := a.vectorIndex(ctx)
	if err != nil {
		return nil, err
	}
	return indexing.New(
		source.NewLoader(), chunker, a.embeddingClient(), idx,
		indexing.Options{
			Policy:  indexing.Policy(a.cfg.Indexing.ErrorPolicy),
			Workers: a.cfg.Indexing.Workers,
		},
		a.logger,
	), nil
}

// answerService builds the query pipeline. The memory driver starts empty,
// so the document is indexed first.
func (a *app) answerService(ctx context.Context) (*answer.Service, error) {
	idx, err := a.vectorIndex(ctx)
	if err != nil {
		return nil, err
	}

	if a.cfg.Index.Driver == config.DriverMemory {
		svc, err := a.indexingService(ctx)
		if err != nil {
			return nil, err
		}
		report, err := svc.Run(ctx, a.cfg.Source.DocumentPath)
		if err != nil {
			return nil, err
		}
		if report.Indexed == 0 && report.Total > 0 {
			return nil, fmt.Errorf("in-memory index is empty: %w", report.Err())
		}
	}

	return answer.New(
		a.embeddingClient(), idx, source.NewLoader(),
		prompt.NewAssembler(a.cfg.Prompt.EscapeDelimiters), a.generator(),
		answer.Options{
			TopK:             a.cfg.Index.TopK,
			SystemPromptPath: a.cfg.Source.SystemPromptPath,
		},
	), nil
}

// healthService never fails: an index that cannot be opened is reported as
// an unhealthy component.
func (a *app) healthService(ctx context.Context) *healthuc.Service {
	var pinger healthuc.IndexPinger
	idx, err := a.vectorIndex(ctx)
	if err != nil {
		pinger = failedPinger{err: err}
	} else {
		pinger = idx
	}
	return healthuc.New(pinger, a.embeddingClient(), 0)
}

type failedPinger struct{ err error }

func (p failedPinger) Ping(context.Context) error { return p.err }
