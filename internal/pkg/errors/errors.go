// Package errors provides the error taxonomy shared by the montage service.
// Errors carry a category code, the failing operation, optional context
// fields and the stack at creation.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code represents an error category.
type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeCapacity    Code = "CAPACITY_EXCEEDED"
	CodeResource    Code = "RESOURCE_ERROR"
	CodeStorageFull Code = "INSUFFICIENT_STORAGE"
	CodeRender      Code = "RENDER_ERROR"
	CodePublish     Code = "PUBLISH_ERROR"
	CodeCallback    Code = "CALLBACK_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeRateLimited Code = "RESOURCE_EXHAUSTED"
	CodeUnavailable Code = "UNAVAILABLE"
)

// Error is a categorized error. Op names the failing operation, such as
// "renderer.run"; Stack is captured where the error was built.
type Error struct {
	Code    Code
	Message string
	Op      string
	Err     error
	Fields  map[string]any
	Stack   []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = "[" + string(e.Code) + "] " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

var statusByCode = map[Code]int{
	CodeValidation:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeConflict:    http.StatusConflict,
	CodeRateLimited: http.StatusTooManyRequests,
	CodeResource:    http.StatusBadGateway,
	CodePublish:     http.StatusBadGateway,
	CodeCallback:    http.StatusBadGateway,
	CodeCapacity:    http.StatusServiceUnavailable,
	CodeUnavailable: http.StatusServiceUnavailable,
	CodeStorageFull: http.StatusInsufficientStorage,
}

// HTTPStatus maps the code to a response status; unknown codes are 500.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(2)}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Stack: captureStack(2)}
}

// Wrap keeps the code and fields of a wrapped *Error and falls back to
// CodeInternal for anything else.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	out := &Error{Code: CodeInternal, Message: message, Op: op, Err: err, Stack: captureStack(2)}
	var inner *Error
	if errors.As(err, &inner) {
		out.Code, out.Fields = inner.Code, inner.Fields
	}
	return out
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(2)}
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// NotFound creates a not found error.
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// Capacity creates an admission refusal.
func Capacity(active, limit int) *Error {
	return New(CodeCapacity, "capacity").
		WithField("active", active).
		WithField("limit", limit)
}

// Resource wraps an asset fetch or local storage failure.
func Resource(err error, op string, message string) *Error {
	return WrapWithCode(err, CodeResource, op, message)
}

// Publish wraps an upload failure.
func Publish(err error, op string, message string) *Error {
	return WrapWithCode(err, CodePublish, op, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Unavailable creates an unavailable error.
func Unavailable(service string) *Error {
	return New(CodeUnavailable, fmt.Sprintf("service unavailable: %s", service)).
		WithField("service", service)
}

func as(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetCode returns CodeInternal for errors outside the taxonomy.
func GetCode(err error) Code {
	if e, ok := as(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	if e, ok := as(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func GetFields(err error) map[string]any {
	if e, ok := as(err); ok {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool { return GetCode(err) == code }
func IsValidation(err error) bool      { return IsCode(err, CodeValidation) }
func IsCapacity(err error) bool        { return IsCode(err, CodeCapacity) }

// captureStack keeps up to ten non-runtime frames above the caller.
func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip+1, pcs[:])])
	var out []Frame
	for len(out) < 10 {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
