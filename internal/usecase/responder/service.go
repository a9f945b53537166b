package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/logger"
	"github.com/kailas-cloud/ragmail/internal/metrics"
)

// Message outcomes.
const (
	OutcomeReplied = "replied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// DefaultInterval is the pause between poll cycles.
const DefaultInterval = 2 * time.Second

// Options configure the responder.
type Options struct {
	Interval time.Duration
	// SelfAddress is the reply sender; mail from it is skipped to avoid reply loops.
	SelfAddress string
}

// PollResult counts what one poll cycle did.
type PollResult struct {
	Fetched int
	Replied int
	Failed  int
	Skipped int
}

// Service answers unseen mail one message at a time.
type Service struct {
	fetcher  Fetcher
	sender   Sender
	answerer Answerer
	opts     Options
	logger   *zap.Logger
}

// New creates a responder.
func New(fetcher Fetcher, sender Sender, answerer Answerer, opts Options, logger *zap.Logger) *Service {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:  fetcher,
		sender:   sender,
		answerer: answerer,
		opts:     opts,
		logger:   logger,
	}
}

// Poll fetches unseen messages and replies to each in turn. Only a fetch
// failure is returned; per-message failures are logged and counted.
func (s *Service) Poll(ctx context.Context) (PollResult, error) {
	msgs, err := s.fetcher.FetchUnseen(ctx)
	if err != nil {
		metrics.MailPollsTotal.WithLabelValues(metrics.Status(err)).Inc()
		return PollResult{}, fmt.Errorf("fetch unseen: %w", err)
	}
	metrics.MailPollsTotal.WithLabelValues(metrics.Status(nil)).Inc()

	res := PollResult{Fetched: len(msgs)}
	for _, m := range msgs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch s.handle(ctx, m) {
		case OutcomeReplied:
			res.Replied++
		case OutcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}
	return res, nil
}

// Run polls every interval until ctx is cancelled. Poll errors never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Responder started", zap.Duration("interval", s.opts.Interval))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		res, err := s.Poll(ctx)
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		case err != nil:
			s.logger.Error("Poll failed", zap.Error(err))
		case res.Fetched > 0:
			s.logger.Info("Poll finished",
				zap.Int("fetched", res.Fetched),
				zap.Int("replied", res.Replied),
				zap.Int("failed", res.Failed),
				zap.Int("skipped", res.Skipped),
			)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Responder stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// handle answers one message. It never returns an error: a bad message must
// not take the loop down.
func (s *Service) handle(ctx context.Context, m domain.Message) (outcome string) {
	start := time.Now()
	ctx = logger.ContextWithLogger(ctx, s.logger.With(
		zap.Uint32("uid", m.UID),
		zap.String("from", m.From),
		zap.String("subject", m.Subject),
	))
	log := logger.FromContext(ctx)

	var (
		matches int
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("panic: %v", r)
		}
		metrics.MailMessagesTotal.WithLabelValues(outcome).Inc()

		fields := []zap.Field{
			zap.String("outcome", outcome),
			zap.Int("matches", matches),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			log.Error("Message processed", append(fields, zap.Error(err))...)
			return
		}
		log.Info("Message processed", fields...)
	}()

	if s.opts.SelfAddress != "" && strings.EqualFold(m.From, s.opts.SelfAddress) {
		return OutcomeSkipped
	}

	ans, err := s.answerer.Answer(ctx, m.Query())
	if err != nil {
		return OutcomeFailed
	}
	matches = len(ans.Matches)

	if err = s.sender.Send(ctx, domain.NewReply(m, ans.Text)); err != nil {
		err = fmt.Errorf("send reply: %w", err)
		return OutcomeFailed
	}
	return OutcomeReplied
}
