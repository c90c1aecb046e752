package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ar10000/sitechat/internal/domain"
)

// ErrorResponse is the structured error payload. Error carries the machine
// code the UI switches on; Message is the human-readable detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error writes a structured error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: code, Message: message})
}

// DomainErrorToHTTP maps domain error codes to HTTP status codes
func DomainErrorToHTTP(code string) int {
	switch code {
	case domain.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case domain.ErrCodeMissingEmbeddings, domain.ErrCodeMissingAPIKey:
		return http.StatusServiceUnavailable
	case domain.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrCodeUpstream, domain.ErrCodeModelExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes a structured error response based on the error type.
// Callers never see raw error payloads for non-domain errors.
func HandleError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		Error(w, DomainErrorToHTTP(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}
	Error(w, http.StatusInternalServerError, domain.ErrCodeUpstream, "internal error")
}
