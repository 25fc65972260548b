package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmanError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with AmanError
	amanErr := New(ErrCodeFileNotFound, "manifest not found", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, amanErr)
	assert.Equal(t, originalErr, errors.Unwrap(amanErr))
	assert.True(t, errors.Is(amanErr, originalErr))
}

func TestAmanError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "quota error",
			code:     ErrCodeQuotaExhausted,
			message:  "insufficient_quota",
			expected: "[ERR_301_QUOTA_EXHAUSTED] insufficient_quota",
		},
		{
			name:     "backend error",
			code:     ErrCodeNotInitialized,
			message:  "collection docs does not exist",
			expected: "[ERR_502_NOT_INITIALIZED] collection docs does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestAmanError_Is_MatchesByCode(t *testing.T) {
	err := New(ErrCodeNotInitialized, "collection a", nil)

	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.False(t, errors.Is(err, ErrBackend))
	assert.True(t, errors.Is(fmt.Errorf("search: %w", err), ErrNotInitialized))
}

func TestAmanError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileLocked, CategoryIO},
		{ErrCodeQuotaExhausted, CategoryNetwork},
		{ErrCodeTransient, CategoryNetwork},
		{ErrCodeQueryEmpty, CategoryValidation},
		{ErrCodeBackend, CategoryBackend},
		{"bogus", CategoryBackend},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "x", nil).Category)
		})
	}
}

func TestAmanError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeRateLimited, true},
		{ErrCodeTransient, true},
		{ErrCodeQuotaExhausted, false},
		{ErrCodeServiceUnavailable, false},
		{ErrCodeInvalidInput, false},
		{ErrCodeBackend, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.retryable, New(tt.code, "x", nil).Retryable)
		})
	}
}

func TestUnavailable_KeepsQuotaInChain(t *testing.T) {
	quota := QuotaError("billing hard limit reached", nil)

	err := Unavailable("embedding", quota)

	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.True(t, IsQuota(err))
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrCodeServiceUnavailable, GetCode(err))
	assert.Equal(t, "embedding", err.Details["stage"])
}

func TestIsRetryable_LooksThroughWrapping(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("embed: %w", TransientError("502", nil))))
	assert.False(t, IsRetryable(QuotaError("quota", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
