package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration signals malformed settings, e.g. chunk overlap >= chunk size.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrDocumentNotFound signals a missing source document or system prompt file.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmbeddingService signals an embedding provider failure.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrIndexService signals a vector store failure.
	ErrIndexService = errors.New("index service error")
	// ErrGenerationService signals a generation model failure.
	ErrGenerationService = errors.New("generation service error")
	// ErrDimensionMismatch signals a vector whose size differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// ServiceError ties an external-call failure to its taxonomy class and keeps the cause.
type ServiceError struct {
	Kind error
	Op   string
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), e.Op, e.Err.Error())
}

// Unwrap exposes both the class and the cause to errors.Is / errors.As.
func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewServiceError wraps err as a failure of the given class.
func NewServiceError(kind error, op string, err error) error {
	return &ServiceError{Kind: kind, Op: op, Err: err}
}
