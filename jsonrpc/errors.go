package jsonrpc

import (
	"github.com/go-faster/errors"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CodeText returns the canonical message for a reserved error code, or ""
// for application codes.
func CodeText(code int) string {
	switch code {
	case CodeParseError:
		return "Parse error"
	case CodeInvalidRequest:
		return "Invalid Request"
	case CodeMethodNotFound:
		return "Method not found"
	case CodeInvalidParams:
		return "Invalid params"
	case CodeInternalError:
		return "Internal error"
	}
	return ""
}

// Error is a JSON-RPC error object. It is also a Go error, so handlers can
// return one to control the code and message sent to the caller.
//
// Data is only serialised when non-nil. The cause, if any, is available
// through errors.Is and errors.As but is never serialised.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithData returns a copy of e carrying v as its data member.
func (e *Error) WithData(v any) *Error {
	cp := *e
	cp.Data = v
	return &cp
}

// NewError creates an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error whose message is "<message>: <cause>". The cause is
// kept for errors.Is and errors.As.
func Wrap(code int, cause error, message string) *Error {
	msg := message
	if cause != nil {
		msg = message + ": " + cause.Error()
	}
	return &Error{Code: code, Message: msg, cause: cause}
}

// codeError builds a reserved-code error with a short detail, e.g.
// "Invalid params: unknown param: foo".
func codeError(code int, detail string) *Error {
	return Wrap(code, errors.New(detail), CodeText(code))
}

// AsError converts any error returned by a handler into an Error. Tagged
// errors anywhere in the chain pass through unchanged, everything else
// becomes an InternalError wrapping err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr
	}
	return Wrap(CodeInternalError, err, CodeText(CodeInternalError))
}
