// Package exception defines the error types raised by the batch engine and the helpers
// the retry and skip policies use to classify them.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var (
	registryMu    sync.RWMutex
	errorRegistry = make(map[string]error)
)

// RegisterErrorType registers a sentinel error under a name that retry and skip
// configuration can refer to. It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("exception: error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("exception: nil prototype for error type %q", name))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the general error raised by engine components.
type BatchError struct {
	// Module names the component that failed (e.g. "reader", "ChunkStep").
	Module string
	// Message is a short description.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	// StackTrace is captured at construction for diagnostics.
	StackTrace string

	retryable bool
	skippable bool
}

// NewBatchError creates a BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
		retryable:   isRetryable,
		skippable:   isSkippable,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message. Trailing arguments are
// inspected from the end for, in order, an error cause, a retryable flag and a skippable flag:
//
//	NewBatchErrorf("writer", "insert into %s", "result_text", true, false, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	var retryable, skippable bool
	args := a
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			cause = err
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			retryable = b
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			skippable = b
			args = args[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, args...), cause, skippable, retryable)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error implements error.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error { return e.OriginalErr }

// IsRetryable reports whether the error was flagged retryable.
func (e *BatchError) IsRetryable() bool { return e.retryable }

// IsSkippable reports whether the error was flagged skippable.
func (e *BatchError) IsSkippable() bool { return e.skippable }

// IsBatchError reports whether err's chain contains a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsTemporary reports whether err looks transient. A BatchError's retryable flag wins.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused")
}

// IsErrorOfType reports whether err matches typeName. typeName may be a registered name
// (compared with errors.Is), a Go type name such as "*net.OpError", or a message substring.
func IsErrorOfType(err error, typeName string) bool {
	if err == nil || typeName == "" {
		return false
	}
	registryMu.RLock()
	target, ok := errorRegistry[typeName]
	registryMu.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), typeName) {
			return true
		}
		t := reflect.TypeOf(cur)
		if t.String() == typeName || (t.Kind() == reflect.Ptr && t.Elem().String() == typeName) {
			return true
		}
	}
	return false
}

// OptimisticLockingFailureException is the registered name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure is returned when a versioned update matched no row.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException wraps ErrOptimisticLockingFailure in a fatal BatchError.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	cause := ErrOptimisticLockingFailure
	if originalErr != nil {
		cause = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, cause, false, false)
}

// IsOptimisticLockingFailure reports whether err is an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the BatchError message when present, else err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("io.EOF", io.EOF)
	RegisterErrorType("io.ErrUnexpectedEOF", io.ErrUnexpectedEOF)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
