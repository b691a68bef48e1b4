package utils

import (
	"encoding/json"
	"net/http"

	"github.com/upb/llm-gateway/services"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes the standard error body.
func WriteError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message, Details: details})
}

// WriteDomainError maps a service error to its HTTP status and writes it.
// Internal and external failures hide their cause from the client.
func WriteDomainError(w http.ResponseWriter, err error) {
	de, ok := services.AsDomainError(err)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred", nil)
		return
	}
	WriteError(w, StatusForErrorType(de.Type), de.Code, de.Message, de.Details)
}

// StatusForErrorType maps the error taxonomy to HTTP status codes.
func StatusForErrorType(t services.ErrorType) int {
	switch t {
	case services.ErrorTypeValidation:
		return http.StatusBadRequest
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden, services.ErrorTypePolicy, services.ErrorTypeSecurity:
		return http.StatusForbidden
	case services.ErrorTypeBudget:
		return http.StatusPaymentRequired
	case services.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case services.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
