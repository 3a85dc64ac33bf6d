package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the dispatch subsystem.
type ErrorKind string

const (
	KindInvalidInput   ErrorKind = "invalid_input"
	KindNotInitialized ErrorKind = "not_initialized"
	KindShuttingDown   ErrorKind = "shutting_down"
	KindFileSystem     ErrorKind = "file_system_error"
	KindGeneration     ErrorKind = "generation_error"
	KindDatabase       ErrorKind = "database_error"
	KindUnknown        ErrorKind = "unknown_error"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotInitialized = errors.New("subsystem not initialized")
	ErrShuttingDown   = errors.New("subsystem shutting down")
	ErrFileSystem     = errors.New("file system error")
	ErrGeneration     = errors.New("generation error")
	ErrDatabase       = errors.New("database error")
	ErrUnknown        = errors.New("unknown error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindNotInitialized:
		return ErrNotInitialized
	case KindShuttingDown:
		return ErrShuttingDown
	case KindFileSystem:
		return ErrFileSystem
	case KindGeneration:
		return ErrGeneration
	case KindDatabase:
		return ErrDatabase
	default:
		return ErrUnknown
	}
}

// JobError records which pipeline stage failed, the failure class and its cause.
// errors.Is matches both the kind sentinel and the wrapped cause.
type JobError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewJobError(kind ErrorKind, op string, err error) *JobError {
	return &JobError{Kind: kind, Op: op, Err: err}
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

func (e *JobError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf reports the error kind carried by err, falling back to KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	for _, kind := range []ErrorKind{
		KindInvalidInput, KindNotInitialized, KindShuttingDown,
		KindFileSystem, KindGeneration, KindDatabase,
	} {
		if errors.Is(err, kind.sentinel()) {
			return kind
		}
	}
	return KindUnknown
}

// InvalidInput wraps a validation failure so that it matches ErrInvalidInput.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
