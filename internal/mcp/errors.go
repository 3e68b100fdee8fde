package mcp

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrMalformedMessage is logged when a frame body is not a JSON object.
// No response is sent because no id can be recovered.
var ErrMalformedMessage = errors.New("malformed message")

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewMethodNotFoundError creates an error for an unknown method.
func NewMethodNotFoundError(method string) *RPCError {
	return &RPCError{Code: ErrCodeMethodNotFound, Message: "Method not found: " + method}
}

// NewUnknownToolError creates an error for an unknown tool name.
func NewUnknownToolError(name string) *RPCError {
	return &RPCError{Code: ErrCodeMethodNotFound, Message: "Unknown tool: " + name}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: msg}
}
