// Package bberrors defines the typed error kinds produced across bbforge's
// pipeline and executor stages, so callers can branch on failure class
// without parsing error strings.
package bberrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure into one of the kinds the build engine
// distinguishes when deciding whether to retry, abort the whole run, or
// continue scheduling unaffected tasks.
type Code string

const (
	CodeParseError       Code = "parse-error"
	CodeResolveError     Code = "resolve-error"
	CodeUnknownProvider  Code = "unknown-provider"
	CodeCycle            Code = "cycle"
	CodeCacheError       Code = "cache-error"
	CodeSandboxError     Code = "sandbox-error"
	CodeConflict         Code = "conflict"
	CodeTimeout          Code = "timeout"
	CodeDeadlock         Code = "deadlock"
	CodeFetchError       Code = "fetch-error"
)

// Retryable reports whether the engine should consider re-attempting the
// operation that produced an error of this kind.
func (c Code) Retryable() bool {
	switch c {
	case CodeTimeout, CodeCacheError, CodeSandboxError, CodeFetchError:
		return true
	default:
		return false
	}
}

// Error is the concrete error type carried through bbforge. It wraps an
// underlying cause while attaching a stable Code and free-form context
// fields useful for structured logging.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error around an existing error, preserving it for
// errors.Is/errors.As and %w-style chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext returns a copy of e with the given key/value merged into its
// Context map. Used to attach recipe names, task ids, or paths at the call
// site that first observes the failure.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// CodeOf extracts the Code from err, walking the Unwrap chain. It returns
// false if no *Error is found anywhere in the chain.
func CodeOf(err error) (Code, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}

// Is reports whether err carries the given Code anywhere in its chain.
func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
