// Package errors provides structured error handling for AmanRAG.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Provider and network errors (embedding, generation)
//   - 4XX: Validation errors
//   - 5XX: Backend and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates provider and network errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryBackend indicates storage backend and internal errors.
	CategoryBackend Category = "BACKEND"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_PERMISSION_DENIED"
	ErrCodeFileLocked     = "ERR_203_FILE_LOCKED"

	// Provider errors (300-399)
	ErrCodeQuotaExhausted     = "ERR_301_QUOTA_EXHAUSTED"
	ErrCodeServiceUnavailable = "ERR_302_SERVICE_UNAVAILABLE"
	ErrCodeTimeout            = "ERR_303_TIMEOUT"
	ErrCodeRateLimited        = "ERR_304_RATE_LIMITED"
	ErrCodeTransient          = "ERR_305_TRANSIENT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_EMPTY_QUERY"

	// Backend errors (500-599)
	ErrCodeBackend        = "ERR_501_BACKEND"
	ErrCodeNotInitialized = "ERR_502_NOT_INITIALIZED"
	ErrCodeInternal       = "ERR_503_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryBackend
	}

	// Numeric portion, e.g. "301" from "ERR_301_QUOTA_EXHAUSTED"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryBackend
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeQuotaExhausted, ErrCodeServiceUnavailable:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Quota exhaustion is never retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeRateLimited, ErrCodeTransient:
		return true
	default:
		return false
	}
}
