package regexpfn

import (
	"errors"
	"fmt"
)

// Kind classifies evaluation failures.
type Kind int

const (
	KindMissingArgument Kind = iota + 1
	KindCompile
	KindMatch
	KindAllocation
)

func (k Kind) String() string {
	switch k {
	case KindMissingArgument:
		return "missing argument"
	case KindCompile:
		return "compile"
	case KindMatch:
		return "match"
	case KindAllocation:
		return "allocation"
	default:
		return "unknown"
	}
}

// ErrMissingArgument is wrapped by errors for NULL arguments.
var ErrMissingArgument = errors.New("missing argument")

// Error is returned by Evaluate. Callers use Kind to tell a failed
// evaluation apart from a false result.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func missingArgument(name string) *Error {
	return &Error{Kind: KindMissingArgument, Err: fmt.Errorf("no %s: %w", name, ErrMissingArgument)}
}
