// Package responses generates answers through the OpenAI Responses API, with
// the system prompt sent as instructions and the assembled prompt as input.
package responses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

const apiLabel = "responses"

// Config holds the Responses API settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	Logger     *zap.Logger
}

// Generator implements domain.Generator.
type Generator struct {
	client    openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

var _ domain.Generator = (*Generator)(nil)

// NewGenerator creates a Responses API generator.
func NewGenerator(cfg *Config) *Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Generate sends input with instructions and returns the concatenated output text.
func (g *Generator) Generate(ctx context.Context, input, instructions string) (domain.Generation, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(g.model),
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if g.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(g.maxTokens))
	}

	start := time.Now()
	resp, err := g.client.Responses.New(ctx, params)
	metrics.GenerationRequestDuration.WithLabelValues(apiLabel, g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(apiLabel, g.model, "error").Inc()
		return domain.Generation{}, domain.NewServiceError(domain.ErrGenerationService, "create response", describe(err))
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(apiLabel, g.model, "error").Inc()
		return domain.Generation{}, domain.NewServiceError(domain.ErrGenerationService, "create response",
			fmt.Errorf("empty output (status %q)", resp.Status))
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	metrics.GenerationRequestsTotal.WithLabelValues(apiLabel, g.model, "success").Inc()
	metrics.GenerationTokensTotal.WithLabelValues(apiLabel, g.model, "input").Add(float64(in))
	metrics.GenerationTokensTotal.WithLabelValues(apiLabel, g.model, "output").Add(float64(out))
	g.logger.Debug("response generated",
		zap.String("response_id", resp.ID),
		zap.Int("input_tokens", in),
		zap.Int("output_tokens", out),
	)

	model := string(resp.Model)
	if model == "" {
		model = g.model
	}
	return domain.Generation{Text: text, Model: model, InputTokens: in, OutputTokens: out}, nil
}

func describe(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("API error %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("request failed: %w", err)
}
