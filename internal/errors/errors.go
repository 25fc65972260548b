package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error type for AmanRAG.
// It provides rich context for error handling, logging, and user presentation.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_301_QUOTA_EXHAUSTED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against sentinel values.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error.
// The error's message becomes the AmanError message.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons.
var (
	ErrQuotaExhausted     = &AmanError{Code: ErrCodeQuotaExhausted}
	ErrServiceUnavailable = &AmanError{Code: ErrCodeServiceUnavailable}
	ErrNotInitialized     = &AmanError{Code: ErrCodeNotInitialized}
	ErrInvalidInput       = &AmanError{Code: ErrCodeInvalidInput}
	ErrQueryEmpty         = &AmanError{Code: ErrCodeQueryEmpty}
	ErrBackend            = &AmanError{Code: ErrCodeBackend}
	ErrFileLocked         = &AmanError{Code: ErrCodeFileLocked}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// BackendError creates a storage backend error.
func BackendError(message string, cause error) *AmanError {
	return New(ErrCodeBackend, message, cause)
}

// QuotaError creates a quota/billing exhaustion error. Never retried.
func QuotaError(message string, cause error) *AmanError {
	return New(ErrCodeQuotaExhausted, message, cause).
		WithSuggestion("Check the provider account's billing and quota, or switch to a local provider")
}

// TransientError creates a retryable provider error.
func TransientError(message string, cause error) *AmanError {
	return New(ErrCodeTransient, message, cause)
}

// Unavailable wraps a quota failure from a stage that cannot proceed without
// the provider. The quota error stays reachable through the chain.
func Unavailable(stage string, cause error) *AmanError {
	return New(ErrCodeServiceUnavailable, stage+": service unavailable", cause).
		WithDetail("stage", stage).
		WithSuggestion("The model provider rejected the request for quota or billing reasons")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any AmanError in the chain is retryable.
func IsRetryable(err error) bool {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsQuota reports whether err is, or wraps, a quota exhaustion error.
func IsQuota(err error) bool {
	return err != nil && stderrors.Is(err, ErrQuotaExhausted)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the outermost error code, or "" for plain errors.
func GetCode(err error) string {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AmanError.
func GetCategory(err error) Category {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
