// Package regex is the compiled-pattern provider behind the REGEXP SQL
// function. It wraps concrete regular-expression engines behind a small
// compile/match/release interface so compiled patterns can be cached and
// released explicitly.
package regex

import (
	"errors"
	"fmt"
	"time"
)

// Result codes returned by Pattern.Match. Non-negative codes mean the subject
// matched.
const (
	// NoMatch reports that the subject did not match. It is not an error.
	NoMatch = -1
	// ErrCodeMatchFailed reports an internal engine failure.
	ErrCodeMatchFailed = -2
	// ErrCodeTimeout reports that matching exceeded the engine's time limit.
	ErrCodeTimeout = -3
	// ErrCodeReleased reports a match against a released pattern.
	ErrCodeReleased = -4
)

// Engine names accepted by New.
const (
	EngineRE2  = "re2"
	EnginePCRE = "pcre"
)

// ErrReleased is returned when a released pattern or match state is used.
var ErrReleased = errors.New("pattern released")

// Engine compiles pattern text into patterns.
type Engine interface {
	// Name returns the engine identifier.
	Name() string
	// Compile compiles pattern. Failures are returned as *CompileError.
	Compile(pattern string) (Pattern, error)
}

// Pattern is a compiled pattern. The holder owns it and must call Release
// exactly once.
type Pattern interface {
	// Source returns the text the pattern was compiled from.
	Source() string
	// NewMatchState allocates scratch space for one Match call.
	NewMatchState() MatchState
	// Match tests subject. It returns a non-negative code on a match,
	// NoMatch when nothing matched, or another negative code together with
	// a non-nil error.
	Match(st MatchState, subject string) (int, error)
	// Release frees the pattern.
	Release()
}

// MatchState is per-call scratch space owned by the caller.
type MatchState interface {
	Release()
}

// Preparer is implemented by patterns that support a post-compile
// preparation step. A failed preparation is reported as a compile error.
type Preparer interface {
	Prepare() error
}

// CompileError describes a pattern that failed to compile or prepare.
type CompileError struct {
	Pattern string
	Message string
	// Offset is the byte offset within Pattern where compilation failed, or
	// -1 when the engine does not report one.
	Offset int
	Err    error
}

func (e *CompileError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s (offset %d)", e.Pattern, e.Message, e.Offset)
	}
	return fmt.Sprintf("%s: %s", e.Pattern, e.Message)
}

func (e *CompileError) Unwrap() error { return e.Err }

// MatchError describes an engine failure while matching.
type MatchError struct {
	Code    int
	Message string
	Err     error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match failed (code %d): %s", e.Code, e.Message)
}

func (e *MatchError) Unwrap() error { return e.Err }

// Options configures engines created by New.
type Options struct {
	// MaxProgramSize limits the compiled program size of re2 patterns.
	// Zero means unlimited.
	MaxProgramSize int
	// MatchTimeout bounds a single pcre match. Zero means no limit.
	MatchTimeout time.Duration
}

// New returns the engine registered under name.
func New(name string, opts Options) (Engine, error) {
	switch name {
	case EngineRE2, "":
		return NewRE2(opts.MaxProgramSize), nil
	case EnginePCRE:
		return NewPCRE(opts.MatchTimeout), nil
	default:
		return nil, fmt.Errorf("unknown regex engine %q", name)
	}
}

// Prepare compiles pattern with engine and runs the optional preparation
// step. On a preparation failure the compiled pattern is released before the
// error is returned.
func Prepare(engine Engine, pattern string) (Pattern, error) {
	p, err := engine.Compile(pattern)
	if err != nil {
		return nil, err
	}
	prep, ok := p.(Preparer)
	if !ok {
		return p, nil
	}
	if err := prep.Prepare(); err != nil {
		p.Release()
		var ce *CompileError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, &CompileError{Pattern: pattern, Message: err.Error(), Offset: -1, Err: err}
	}
	return p, nil
}
