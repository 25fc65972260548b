package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_DeadlineExceeded(t *testing.T) {
	// Given: deadline exceeded error
	err := context.DeadlineExceeded

	// When: mapping the error
	result := MapError(err)

	// Then: returns timeout error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
	assert.Contains(t, result.Message, "timed out")
}

func TestMapError_Canceled(t *testing.T) {
	result := MapError(fmt.Errorf("ask: %w", context.Canceled))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
	assert.Contains(t, result.Message, "canceled")
}

func TestMapError_UnknownError(t *testing.T) {
	// Given: unknown error
	err := errors.New("some unknown error")

	// When: mapping the error
	result := MapError(err)

	// Then: returns internal error without leaking the cause
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.Equal(t, "Internal server error.", result.Message)
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("bad mode")

	result := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, result)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: "missing required field",
	}

	msg := err.Error()

	assert.Contains(t, msg, "MCP error")
	assert.Contains(t, msg, "-32602")
	assert.Contains(t, msg, "missing required field")
}

func TestNewMethodNotFoundError(t *testing.T) {
	err := NewMethodNotFoundError("unknown_tool")

	assert.Equal(t, ErrCodeMethodNotFound, err.Code)
	assert.Contains(t, err.Message, "unknown_tool")
}

// ============================================================================
// AmanError mapping
// ============================================================================

func TestMapError_AmanErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty query", amerrors.New(amerrors.ErrCodeQueryEmpty, "question is empty", nil), ErrCodeInvalidParams},
		{"invalid input", amerrors.ValidationError("unknown mode", nil), ErrCodeInvalidParams},
		{"not initialized", amerrors.New(amerrors.ErrCodeNotInitialized, "collection missing", nil), ErrCodeIndexNotFound},
		{"locked", amerrors.New(amerrors.ErrCodeFileLocked, "index locked", nil), ErrCodeIndexBusy},
		{"quota", amerrors.QuotaError("insufficient_quota", nil), ErrCodeProviderUnavailable},
		{"unavailable", amerrors.Unavailable("generation", amerrors.QuotaError("quota", nil)), ErrCodeProviderUnavailable},
		{"timeout", amerrors.New(amerrors.ErrCodeTimeout, "slow", nil), ErrCodeTimeout},
		{"transient", amerrors.TransientError("503 from provider", nil), ErrCodeProviderUnavailable},
		{"backend", amerrors.BackendError("table missing", nil), ErrCodeBackend},
		{"internal", amerrors.InternalError("bug", nil), ErrCodeInternalError},
		{"config", amerrors.ConfigError("bad lambda", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("run: %w", amerrors.New(amerrors.ErrCodeFileLocked, "locked", nil)), ErrCodeIndexBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.want, result.Code)
		})
	}
}

func TestMapError_AmanErrorIncludesSuggestion(t *testing.T) {
	// Given: an error carrying a suggestion
	err := amerrors.New(amerrors.ErrCodeNotInitialized, "collection \"docs\" has not been created", nil).
		WithSuggestion("Run 'amanrag index --full' to build the collection")

	// When: mapping the error
	result := MapError(err)

	// Then: the client sees both message and suggestion
	assert.Contains(t, result.Message, "has not been created")
	assert.Contains(t, result.Message, "amanrag index --full")
}
