package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

const chatAPI = "chat"

// ChatGenerator produces answers through the Chat Completions endpoint.
// The system prompt goes in as the system message, the assembled prompt as
// the user message.
type ChatGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

var _ domain.Generator = (*ChatGenerator)(nil)

// NewChatGenerator creates a chat-completions generator.
func NewChatGenerator(cfg *Config) *ChatGenerator {
	return &ChatGenerator{
		client:    newClient(cfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    loggerOrNop(cfg.Logger),
	}
}

// Generate implements domain.Generator.
func (g *ChatGenerator) Generate(ctx context.Context, input, instructions string) (domain.Generation, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if instructions != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instructions})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input})

	req := openai.ChatCompletionRequest{Model: g.model, Messages: msgs}
	if g.maxTokens > 0 {
		req.MaxCompletionTokens = g.maxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	metrics.GenerationRequestDuration.WithLabelValues(chatAPI, g.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(chatAPI, g.model, "error").Inc()
		return domain.Generation{}, domain.NewServiceError(domain.ErrGenerationService, "chat completion", describeAPIError(err))
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(chatAPI, g.model, "error").Inc()
		return domain.Generation{}, domain.NewServiceError(domain.ErrGenerationService, "chat completion",
			errors.New("empty completion"))
	}

	metrics.GenerationRequestsTotal.WithLabelValues(chatAPI, g.model, "success").Inc()
	metrics.GenerationTokensTotal.WithLabelValues(chatAPI, g.model, "input").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(chatAPI, g.model, "output").Add(float64(resp.Usage.CompletionTokens))
	g.logger.Debug("chat completion done",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return domain.Generation{
		Text:         text,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
