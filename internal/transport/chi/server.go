// Package chi serves the ops HTTP surface: health, metrics and an ask endpoint
// that runs the query pipeline outside the mailbox loop.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragmail/internal/domain"
	"github.com/kailas-cloud/ragmail/internal/metrics"
	"github.com/kailas-cloud/ragmail/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragmail/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeNotImplemented    = "not_implemented"
	CodeInvalidConfig     = "invalid_configuration"
	CodeDocumentNotFound  = "document_not_found"
	CodeEmbeddingService  = "embedding_service_error"
	CodeIndexService      = "index_service_error"
	CodeGenerationService = "generation_service_error"
	CodeInternalError     = "internal_error"
)

const maxQueryBytes = 64 << 10

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Asker runs the query pipeline.
type Asker interface {
	Answer(ctx context.Context, query string) (answer.Answer, error)
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// AskRequest is the JSON body of POST /ask.
type AskRequest struct {
	Query string `json:"query"`
}

// AskMatch is one retrieved chunk in an AskResponse.
type AskMatch struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// AskResponse is the JSON body returned by POST /ask.
type AskResponse struct {
	Answer  string     `json:"answer"`
	Model   string     `json:"model,omitempty"`
	Matches []AskMatch `json:"matches"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the ops routes.
type Server struct {
	health        HealthChecker
	asker         Asker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an ops server. asker can be nil, in which case /ask answers 501.
func NewServer(health HealthChecker, asker Asker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		health: health,
		asker:  asker,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidConfiguration, http.StatusBadRequest, CodeInvalidConfig),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusInternalServerError, CodeDocumentNotFound),
		sentinelHandler(domain.ErrEmbeddingService, http.StatusBadGateway, CodeEmbeddingService),
		sentinelHandler(domain.ErrIndexService, http.StatusBadGateway, CodeIndexService),
		sentinelHandler(domain.ErrGenerationService, http.StatusBadGateway, CodeGenerationService),
	}
	return s
}

// Router builds the chi router with the middleware chain. Empty apiKeys
// disables authentication.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/ask", s.Ask)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	return r
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "ask is not enabled")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "query is required")
		return
	}

	ans, err := s.asker.Answer(r.Context(), req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	matches := make([]AskMatch, len(ans.Matches))
	for i, m := range ans.Matches {
		matches[i] = AskMatch{ID: m.ID, Score: m.Score}
	}
	setUsageHeaders(w, ans.Usage)
	writeJSON(w, http.StatusOK, AskResponse{Answer: ans.Text, Model: ans.Model, Matches: matches})
}

func setUsageHeaders(w http.ResponseWriter, u domain.TokenCounts) {
	if u.Embedding > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(u.Embedding))
	}
	if u.Input+u.Output > 0 {
		w.Header().Set("X-Generation-Tokens", strconv.Itoa(u.Input+u.Output))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidConfiguration,
		domain.ErrDocumentNotFound,
		domain.ErrEmbeddingService,
		domain.ErrIndexService,
		domain.ErrGenerationService,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
