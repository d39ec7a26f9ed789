package rpc

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// ErrorKind classifies a dispatch failure.
type ErrorKind int

const (
	// UnknownCommand means the type is not registered or its feature is disabled.
	UnknownCommand ErrorKind = iota + 1
	// HandlerFailed means the handler returned an error or panicked.
	HandlerFailed
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownCommand:
		return "unknown_command"
	case HandlerFailed:
		return "handler_failed"
	default:
		return "unknown"
	}
}

// DispatchError is the structured failure produced by the Dispatcher.
type DispatchError struct {
	Kind    ErrorKind
	Type    string
	Message string
	Stack   string
	Err     error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func unknownCommand(cmdType string) *DispatchError {
	return &DispatchError{
		Kind:    UnknownCommand,
		Type:    cmdType,
		Message: fmt.Sprintf("Unknown command type: %s", cmdType),
	}
}

func handlerFailed(cmdType string, err error) *DispatchError {
	err = WithErrorStack(err)
	return &DispatchError{
		Kind:    HandlerFailed,
		Type:    cmdType,
		Message: err.Error(),
		Stack:   ErrorStack(err),
		Err:     err,
	}
}

// IsKind reports whether err is a DispatchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Kind == kind
}

type stackTraceCarrier interface {
	StackTrace() string
}

// ErrorWithStack keeps the original error while attaching a stack trace.
type ErrorWithStack struct {
	err   error
	stack string
}

func (e *ErrorWithStack) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *ErrorWithStack) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *ErrorWithStack) StackTrace() string {
	if e == nil {
		return ""
	}
	return e.stack
}

// WithErrorStack wraps err with a stack trace if it does not already have one.
func WithErrorStack(err error) error {
	if err == nil {
		return nil
	}
	var carrier stackTraceCarrier
	if errors.As(err, &carrier) && strings.TrimSpace(carrier.StackTrace()) != "" {
		return err
	}
	return &ErrorWithStack{
		err:   err,
		stack: string(debug.Stack()),
	}
}

// ErrorStack returns the stack trace from an error when available.
func ErrorStack(err error) string {
	if err == nil {
		return ""
	}
	var carrier stackTraceCarrier
	if errors.As(err, &carrier) {
		return strings.TrimSpace(carrier.StackTrace())
	}
	return ""
}

// panicError converts a recovered value, capturing the panicking stack.
func panicError(v any) error {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}
	return &ErrorWithStack{err: err, stack: string(debug.Stack())}
}
