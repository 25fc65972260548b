// Package mcp implements the Model Context Protocol (MCP) server for AmanRAG.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Custom MCP error codes for AmanRAG.
const (
	// ErrCodeIndexNotFound indicates the collection has not been built.
	ErrCodeIndexNotFound = -32001

	// ErrCodeProviderUnavailable indicates the embedding or generation
	// provider is out of quota or unreachable.
	ErrCodeProviderUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeIndexBusy indicates another index run holds the lock.
	ErrCodeIndexBusy = -32004

	// ErrCodeBackend indicates the storage backend failed.
	ErrCodeBackend = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var amanErr *amerrors.AmanError
	if errors.As(err, &amanErr) {
		return mapAmanError(amanErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapAmanError converts an AmanError to an MCPError. Specific codes win
// over the category default.
func mapAmanError(ae *amerrors.AmanError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ae.Message, ae.Suggestion)
	}

	switch ae.Code {
	case amerrors.ErrCodeNotInitialized:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case amerrors.ErrCodeFileLocked:
		return &MCPError{Code: ErrCodeIndexBusy, Message: message}
	case amerrors.ErrCodeTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case amerrors.ErrCodeQuotaExhausted, amerrors.ErrCodeServiceUnavailable:
		return &MCPError{Code: ErrCodeProviderUnavailable, Message: message}
	}

	switch ae.Category {
	case amerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case amerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeProviderUnavailable, Message: message}
	case amerrors.CategoryBackend:
		if ae.Code == amerrors.ErrCodeBackend {
			return &MCPError{Code: ErrCodeBackend, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
