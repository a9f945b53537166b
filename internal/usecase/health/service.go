package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used as report keys.
const (
	ComponentIndex     = "index"
	ComponentEmbedding = "embedding"
)

// DefaultTimeout bounds a single component check.
const DefaultTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Errors map[string]string // failure detail per component
}

// Service coordinates health checks.
type Service struct {
	index     IndexPinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil; timeout <= 0 uses DefaultTimeout.
func New(index IndexPinger, embedding EmbeddingChecker, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{index: index, embedding: embedding, timeout: timeout}
}

// Check runs the component checks concurrently, each under its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	probes := map[string]func(context.Context) error{
		ComponentIndex: s.index.Ping,
	}
	if s.embedding != nil {
		probes[ComponentEmbedding] = s.embedding.HealthCheck
	}

	report := Report{
		Checks: make(map[string]CheckResult, len(probes)),
		Errors: make(map[string]string),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			err := probe(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Checks[name] = CheckError
				report.Errors[name] = err.Error()
				return
			}
			report.Checks[name] = CheckOK
		}()
	}
	wg.Wait()

	report.Status = aggregate(report.Checks)
	return report
}

func aggregate(checks map[string]CheckResult) Status {
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	switch {
	case failed == 0:
		return Healthy
	case failed == len(checks):
		return Unhealthy
	default:
		return Degraded
	}
}
