package answer

import "context"

// Pipeline is anything that answers a query; *Service is the real one.
type Pipeline interface {
	Answer(ctx context.Context, query string) (Answer, error)
}

// Serialized lets one query pipeline run at a time across every caller:
// the mailbox loop and the ops /ask handler share one instance.
type Serialized struct {
	next Pipeline
	sem  chan struct{}
}

// NewSerialized wraps next so concurrent Answer calls queue behind each other.
func NewSerialized(next Pipeline) *Serialized {
	return &Serialized{next: next, sem: make(chan struct{}, 1)}
}

// Answer waits for the running query to finish, or for ctx to end.
func (s *Serialized) Answer(ctx context.Context, query string) (Answer, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return Answer{}, context.Cause(ctx)
	}
	defer func() { <-s.sem }()
	return s.next.Answer(ctx, query)
}
