package services

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures so handlers can map them to HTTP responses.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypePolicy       ErrorType = "policy_violation"
	ErrorTypeBudget       ErrorType = "budget"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeSecurity     ErrorType = "security"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError is the error shape every service returns. Code is the
// machine-readable identifier surfaced to clients; Details carry
// structured context safe to expose.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsDomainError extracts a DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsType reports whether err is a DomainError of the given type.
func IsType(err error, t ErrorType) bool {
	de, ok := AsDomainError(err)
	return ok && de.Type == t
}

func NewAuthRequired() *DomainError {
	return &DomainError{
		Type:    ErrorTypeUnauthorized,
		Code:    "authentication_required",
		Message: "missing API key or bearer token",
	}
}

func NewInvalidAPIKey() *DomainError {
	return &DomainError{
		Type:    ErrorTypeUnauthorized,
		Code:    "invalid_api_key",
		Message: "the provided API key is not recognized",
	}
}

func NewFeatureNotAllowed(appID, feature string) *DomainError {
	return &DomainError{
		Type:    ErrorTypeForbidden,
		Code:    "feature_not_allowed",
		Message: fmt.Sprintf("feature %q is not enabled for application %q", feature, appID),
		Details: map[string]interface{}{"app_id": appID, "feature": feature},
	}
}

func NewRequestDenied(ruleID, reason string) *DomainError {
	return &DomainError{
		Type:    ErrorTypePolicy,
		Code:    "request_denied",
		Message: reason,
		Details: map[string]interface{}{"rule_id": ruleID},
	}
}

func NewBudgetWouldExceed(budgetID string, spend, limit float64) *DomainError {
	return &DomainError{
		Type:    ErrorTypeBudget,
		Code:    "budget_would_exceed",
		Message: "budget hard limit reached for this request",
		Details: map[string]interface{}{
			"budget_id":      budgetID,
			"spend_usd":      spend,
			"hard_limit_usd": limit,
		},
	}
}

func NewSecurityBlocked(category string, score float64) *DomainError {
	return &DomainError{
		Type:    ErrorTypeSecurity,
		Code:    "request_denied",
		Message: fmt.Sprintf("request blocked by security guard (%s)", category),
		Details: map[string]interface{}{"category": category, "risk_score": score},
	}
}

func NewInputValidation(message string, err error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeValidation,
		Code:    "input_validation_failed",
		Message: message,
		Err:     err,
	}
}

func NewRateLimited(provider string) *DomainError {
	return &DomainError{
		Type:    ErrorTypeRateLimit,
		Code:    "rate_limit_exceeded",
		Message: fmt.Sprintf("provider %q rate limited the request", provider),
		Details: map[string]interface{}{"provider": provider},
	}
}

func NewProviderError(provider string, err error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeExternal,
		Code:    "provider_error",
		Message: fmt.Sprintf("provider %q failed to serve the request", provider),
		Err:     err,
		Details: map[string]interface{}{"provider": provider},
	}
}

func NewInternalError(message string, err error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeInternal,
		Code:    "internal_error",
		Message: message,
		Err:     err,
	}
}
