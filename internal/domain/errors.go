package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch covers network failures and timeouts. Retried with backoff.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrFormat marks a malformed payload. Not retried until the source changes.
	ErrFormat = errors.New("format error")
	// ErrOutOfRange means the source has no data for the request. Not an error
	// for the tile: it renders without this layer.
	ErrOutOfRange = errors.New("out of range")
	// ErrStateConflict is reported when a result targets a tile or layer that
	// no longer exists. Always discarded silently.
	ErrStateConflict = errors.New("state conflict")
	// ErrCancelled resolves handles that were cancelled or dropped before running.
	ErrCancelled = errors.New("command cancelled")
)

// CommandError attaches an error kind and the failing operation to a cause.
type CommandError struct {
	Kind error
	Op   string
	Err  error
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Is(target error) bool { return target == e.Kind }

// NewError builds a CommandError of the given kind.
func NewError(kind error, op string, err error) *CommandError {
	return &CommandError{Kind: kind, Op: op, Err: err}
}

// Errorf builds a CommandError of the given kind with a formatted cause.
func Errorf(kind error, op, format string, args ...any) *CommandError {
	return &CommandError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err into one of the sentinel kinds. Unknown errors are
// treated as transient.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrCancelled
	case errors.Is(err, ErrStateConflict):
		return ErrStateConflict
	case errors.Is(err, ErrOutOfRange):
		return ErrOutOfRange
	case errors.Is(err, ErrFormat):
		return ErrFormat
	}
	return ErrTransientFetch
}

// KindName is a short label for metrics and logs.
func KindName(kind error) string {
	switch kind {
	case nil:
		return "none"
	case ErrTransientFetch:
		return "transient"
	case ErrFormat:
		return "format"
	case ErrOutOfRange:
		return "out_of_range"
	case ErrStateConflict:
		return "state_conflict"
	case ErrCancelled:
		return "cancelled"
	}
	return "unknown"
}
