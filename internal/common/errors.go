package common

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error. Callers match kinds with errors.Is
// against the sentinel values below.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindFileProcessing  Kind = "file_processing"
	KindModelInference  Kind = "model_inference"
	KindExternalService Kind = "external_service"
	KindDatabase        Kind = "database"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
)

// Sentinels for errors.Is matching
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrFileProcessing  = &Error{Kind: KindFileProcessing}
	ErrModelInference  = &Error{Kind: KindModelInference}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrDatabase        = &Error{Kind: KindDatabase}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
)

// Error is the typed error raised by internal components.
// Op names the operation that failed, Msg is the human-readable cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so a sentinel compares equal to any error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Retryable reports whether the orchestration layer may retry after this error.
// Validation and not-found errors require the caller to correct the input.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindModelInference, KindExternalService, KindDatabase:
		return true
	default:
		return false
	}
}

// KindOf returns the Kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func ValidationError(op, format string, args ...interface{}) error {
	return newError(KindValidation, op, format, args...)
}

func FileProcessingError(op string, err error, format string, args ...interface{}) error {
	e := newError(KindFileProcessing, op, format, args...)
	e.Err = err
	return e
}

func ModelInferenceError(op string, err error, format string, args ...interface{}) error {
	e := newError(KindModelInference, op, format, args...)
	e.Err = err
	return e
}

func ExternalServiceError(op string, err error, format string, args ...interface{}) error {
	e := newError(KindExternalService, op, format, args...)
	e.Err = err
	return e
}

func DatabaseError(op string, err error, format string, args ...interface{}) error {
	e := newError(KindDatabase, op, format, args...)
	e.Err = err
	return e
}

func NotFoundError(op, format string, args ...interface{}) error {
	return newError(KindNotFound, op, format, args...)
}

// ConflictError reports a state transition refused because the stored record
// changed since the caller read it
func ConflictError(op, format string, args ...interface{}) error {
	return newError(KindConflict, op, format, args...)
}
