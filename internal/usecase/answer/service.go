package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/domain/prompt"
	"github.com/kailas-cloud/ragmail/internal/logger"
)

// Answer is a generated reply together with the context it was grounded on.
type Answer struct {
	Text    string
	Matches []domain.Match
	Model   string
	Usage   domain.TokenCounts
}

// Options configure the query pipeline.
type Options struct {
	TopK             int
	SystemPromptPath string
}

// Service answers a single query: embed, retrieve, assemble, generate.
type Service struct {
	embedder  Embedder
	retriever Retriever
	prompts   PromptReader
	assembler *prompt.Assembler
	generator Generator
	opts      Options
}

// New creates a query pipeline. TopK falls back to domain.DefaultTopK.
func New(
	embedder Embedder, retriever Retriever, prompts PromptReader,
	assembler *prompt.Assembler, generator Generator, opts Options,
) *Service {
	if opts.TopK <= 0 {
		opts.TopK = domain.DefaultTopK
	}
	if assembler == nil {
		assembler = prompt.NewAssembler(false)
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		prompts:   prompts,
		assembler: assembler,
		generator: generator,
		opts:      opts,
	}
}

// Answer runs the query pipeline once. Errors from every stage propagate
// unchanged so callers can classify them with errors.Is.
func (s *Service) Answer(ctx context.Context, query string) (Answer, error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, errors.New("query is required")
	}

	usage := domain.UsageFromContext(ctx)
	if usage == nil {
		ctx, usage = domain.NewContextWithUsage(ctx)
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	res, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Answer{}, err
	}

	matches, err := s.retriever.Query(ctx, res.Embedding, s.opts.TopK)
	if err != nil {
		return Answer{}, err
	}

	systemPrompt, err := s.prompts.Read(s.opts.SystemPromptPath)
	if err != nil {
		return Answer{}, fmt.Errorf("system prompt: %w", err)
	}

	input := s.assembler.Assemble(query, prompt.JoinContext(domain.Texts(matches)), systemPrompt)

	gen, err := s.generator.Generate(ctx, input.Text, input.Instructions)
	if err != nil {
		return Answer{}, err
	}
	usage.AddGeneration(gen.InputTokens, gen.OutputTokens)

	log.Info("Query answered",
		zap.Int("matches", len(matches)),
		zap.String("model", gen.Model),
		zap.Int("embedding_tokens", usage.EmbeddingTokens()),
		zap.Int("input_tokens", usage.InputTokens()),
		zap.Int("output_tokens", usage.OutputTokens()),
		zap.Duration("duration", time.Since(start)),
	)

	return Answer{
		Text:    gen.Text,
		Matches: matches,
		Model:   gen.Model,
		Usage:   usage.Snapshot(),
	}, nil
}
