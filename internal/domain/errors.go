package domain

import "fmt"

// DomainError represents a domain-specific error with a caller-facing code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes returned to callers. The site UI keys its fallback behavior
// off these strings, so they are part of the wire contract.
const (
	ErrCodeInvalidRequest    = "invalid-request"
	ErrCodeMissingEmbeddings = "missing-embeddings"
	ErrCodeMissingAPIKey     = "missing-api-key"
	ErrCodeUpstream          = "upstream-error"
	ErrCodeModelExhausted    = "model-exhausted"
	ErrCodeRateLimited       = "rate-limited"
)

// Configuration errors: fatal for the request, never retried.
var (
	ErrIndexNotReady        = NewDomainError(ErrCodeMissingEmbeddings, "vector index is not loaded; run the index build first")
	ErrNoCompletionProvider = NewDomainError(ErrCodeMissingAPIKey, "no completion provider configured")
	ErrNoEmbeddingProvider  = NewDomainError(ErrCodeMissingAPIKey, "no embedding provider configured")
)

// Request validation errors.
var (
	ErrEmptyQuery = NewDomainError(ErrCodeInvalidRequest, "query must not be empty")
)
