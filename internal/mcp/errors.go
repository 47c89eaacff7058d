// Package mcp implements the Model Context Protocol (MCP) server for codecontext.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/Aman-CERP/codecontext/internal/errors"
)

// Custom MCP error codes for codecontext.
const (
	// ErrCodeIndexNotFound indicates no index exists for the project.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates the embedding provider failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodePathNotFound indicates the project path does not exist.
	ErrCodePathNotFound = -32004

	// ErrCodeIndexBusy indicates another run holds the project.
	ErrCodeIndexBusy = -32005

	// ErrCodeStorage indicates a vector store failure.
	ErrCodeStorage = -32006

	// Standard JSON-RPC error codes.
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

// MapError converts internal errors to MCP errors by error kind, carrying
// the message and suggestion of structured errors through to the client.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	ce, ok := cerrors.As(err)
	if !ok {
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
	return mapStructuredError(ce)
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapStructuredError(ce *cerrors.Error) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ce.Message, ce.Suggestion)
	}

	code := ErrCodeInternalError
	switch ce.Kind {
	case cerrors.KindValidation:
		code = ErrCodeInvalidParams
	case cerrors.KindNotIndexed:
		code = ErrCodeIndexNotFound
	case cerrors.KindIndexBusy:
		code = ErrCodeIndexBusy
	case cerrors.KindProviderTransient, cerrors.KindProviderPermanent, cerrors.KindPartialIndexing:
		code = ErrCodeEmbeddingFailed
	case cerrors.KindVectorStore:
		code = ErrCodeStorage
	case cerrors.KindConfiguration:
		switch ce.Code {
		case cerrors.ErrCodePathNotFound, cerrors.ErrCodePathNotDirectory, cerrors.ErrCodePathUnreadable:
			code = ErrCodePathNotFound
		default:
			code = ErrCodeInvalidParams
		}
	}
	return &MCPError{Code: code, Message: message}
}
