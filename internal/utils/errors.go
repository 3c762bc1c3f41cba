package utils

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError so callers can branch without string matching.
type Kind int

const (
	KindInternal Kind = iota
	// KindNotFound marks a required input artifact that does not exist.
	KindNotFound
	// KindData marks a required column or row set that is absent or empty.
	KindData
	// KindMismatch marks a model bundle applied against a different feature schema.
	KindMismatch
)

// Sentinels matched by AppError.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrData     = errors.New("data error")
	ErrMismatch = errors.New("schema mismatch")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op   string
	Msg  string
	Kind Kind
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *AppError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindData:
		return target == ErrData
	case KindMismatch:
		return target == ErrMismatch
	}
	return false
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NotFoundError reports a missing artifact together with its expected path.
func NotFoundError(op, artifact, path string, err error) error {
	return &AppError{Op: op, Msg: fmt.Sprintf("%s not found at %s", artifact, path), Kind: KindNotFound, Err: err}
}

// DataError reports a structurally unusable table.
func DataError(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Kind: KindData}
}

// MismatchError reports a model bundle trained against another schema.
func MismatchError(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Kind: KindMismatch}
}

// KindOf extracts the Kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
