package responder

import (
	"context"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/usecase/answer"
)

// Fetcher returns the unseen messages of the mailbox and marks them seen.
type Fetcher interface {
	FetchUnseen(ctx context.Context) ([]domain.Message, error)
}

// Sender delivers a reply.
type Sender interface {
	Send(ctx context.Context, r domain.Reply) error
}

// Answerer runs the query pipeline for one message.
type Answerer interface {
	Answer(ctx context.Context, query string) (answer.Answer, error)
}
