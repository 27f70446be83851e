// Package apperr defines the broker-wide error taxonomy.
// Every failure surfaced to a client is one of these, never a silent no-op.
package apperr

import (
	"errors"
	"fmt"
)

type Code int

const (
	CodeInternal Code = iota + 1
	CodeValidation
	CodeNotFound
	CodeRoomNotFound
	CodeAuthorization
	CodeRoomFull
	CodeInvalidState
	CodePoolExhausted
	CodeCompile
	CodeSpawn
	CodeAbnormalExit
	CodeVersionUnavailable
	CodeInvalidCredentials
	CodeUsernameExists
	CodeUnauthenticated
)

// Error carries a stable code for wire mapping and an optional wrapped cause.
// Validation errors additionally name the offending field.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("[%d] %s: field %q: %v", e.Code, e.Message, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("[%d] %s: field %q", e.Code, e.Message, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%d] %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns a copy carrying err as the cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Field: e.Field, Err: err}
}

// Validation reports a malformed input, naming the field that failed.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Field: field}
}

// Is matches on code, so wrapped copies of a predefined error still compare equal.
func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

var (
	ErrInternal           = New(CodeInternal, "internal error")
	ErrNotFound           = New(CodeNotFound, "game not found")
	ErrRoomNotFound       = New(CodeRoomNotFound, "room not found")
	ErrAuthorization      = New(CodeAuthorization, "permission denied")
	ErrRoomFull           = New(CodeRoomFull, "room is full")
	ErrInvalidState       = New(CodeInvalidState, "operation not allowed in current state")
	ErrPoolExhausted      = New(CodePoolExhausted, "no free ports")
	ErrCompile            = New(CodeCompile, "compile step failed")
	ErrSpawn              = New(CodeSpawn, "failed to spawn process")
	ErrAbnormalExit       = New(CodeAbnormalExit, "process exited abnormally")
	ErrVersionUnavailable = New(CodeVersionUnavailable, "requested version is no longer available")
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid username or password")
	ErrUsernameExists     = New(CodeUsernameExists, "username already taken")
	ErrUnauthenticated    = New(CodeUnauthenticated, "please login first")
)
