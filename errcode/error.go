// Package errcode provides the basic types and functionalities for hierarchical error codes
// Error code format: MMBBBB (MM = module code 2 digits, BBBB = business code 4 digits)
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// LayeredError hierarchical error code
// Supports: error chaining, context data, HTTP status code mapping
type LayeredError struct {
	module     string                 // Module name (canary, injector, metrics, rollback)
	code       int                    // Complete error code (MMBBBB, e.g., 300001)
	msgKey     string                 // Message key (stable identifier, e.g., "error.canary.capacity")
	msg        string                 // Default message
	httpStatus int                    // HTTP status code
	data       map[string]interface{} // context data
	cause      error                  // Original error (error chain)
}

// New creates a hierarchical error code
// moduleCode: module code (10-99)
// businessCode: business code (0001-9999)
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	code := moduleCode*10000 + businessCode
	status := http.StatusOK
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       code,
		msgKey:     msgKey,
		msg:        msg,
		httpStatus: status,
		data:       make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code gets the error code
func (e *LayeredError) Code() int {
	return e.code
}

// Module gets the module name
func (e *LayeredError) Module() string {
	return e.module
}

// MsgKey gets the message key
func (e *LayeredError) MsgKey() string {
	return e.msgKey
}

// Message gets the default message
func (e *LayeredError) Message() string {
	return e.msg
}

// HTTPStatus gets the HTTP status code
func (e *LayeredError) HTTPStatus() int {
	return e.httpStatus
}

// Data gets the context data
func (e *LayeredError) Data() map[string]interface{} {
	return e.data
}

// Unwrap supports Go 1.13+ error chains
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// Is two layered errors are equal when their codes match
// Allows errors.Is(err, canary.ErrCapacity) across WithCause/WithData copies
func (e *LayeredError) Is(target error) bool {
	var le *LayeredError
	if !errors.As(target, &le) {
		return false
	}
	return e.code == le.code
}

// WithCause returns a copy carrying the original error (error chain)
func (e *LayeredError) WithCause(cause error) *LayeredError {
	clone := e.clone()
	clone.cause = cause
	return clone
}

// WithData returns a copy carrying one context datum
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := e.clone()
	clone.data[key] = value
	return clone
}

// WithMessagef returns a copy with a formatted message (code unchanged)
func (e *LayeredError) WithMessagef(format string, args ...interface{}) *LayeredError {
	clone := e.clone()
	clone.msg = fmt.Sprintf(format, args...)
	return clone
}

// clone copies the error (data map is copied, not shared)
func (e *LayeredError) clone() *LayeredError {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return &LayeredError{
		module:     e.module,
		code:       e.code,
		msgKey:     e.msgKey,
		msg:        e.msg,
		httpStatus: e.httpStatus,
		data:       data,
		cause:      e.cause,
	}
}

// IsCode reports whether err (or any error in its chain) carries the given code
func IsCode(err error, code int) bool {
	var le *LayeredError
	if errors.As(err, &le) {
		return le.code == code
	}
	return false
}
