// Package regexpfn evaluates the REGEXP predicate against a pattern cache.
package regexpfn

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/thebinarysearchtree/flyweight/internal/patcache"
	"github.com/thebinarysearchtree/flyweight/internal/regex"
)

// Predicate is the REGEXP function as seen by a host binding.
type Predicate interface {
	Evaluate(pattern, subject sql.NullString) (bool, error)
}

var (
	_ Predicate = (*Evaluator)(nil)
	_ Predicate = (*Locked)(nil)
)

// Evaluator tests subjects against cached patterns. It is not safe for
// concurrent use; see Locked.
type Evaluator struct {
	cache *patcache.Cache
}

// New returns an evaluator backed by cache.
func New(cache *patcache.Cache) *Evaluator {
	return &Evaluator{cache: cache}
}

// Cache returns the evaluator's pattern cache.
func (e *Evaluator) Cache() *patcache.Cache { return e.cache }

// Evaluate reports whether subject matches pattern. Either argument being
// NULL is an error, as are compile and engine failures; a subject that does
// not match yields false and no error.
func (e *Evaluator) Evaluate(pattern, subject sql.NullString) (bool, error) {
	if !pattern.Valid {
		return false, missingArgument("regexp")
	}
	if !subject.Valid {
		return false, missingArgument("string")
	}

	p, err := e.cache.Lookup(pattern.String)
	if err != nil {
		var ce *regex.CompileError
		if errors.As(err, &ce) {
			return false, &Error{Kind: KindCompile, Err: err}
		}
		return false, &Error{Kind: KindAllocation, Err: err}
	}

	st := p.NewMatchState()
	if st == nil {
		return false, &Error{Kind: KindAllocation, Err: errors.New("could not create match data block")}
	}
	defer st.Release()

	rc, err := p.Match(st, subject.String)
	switch {
	case rc >= 0:
		return true, nil
	case rc == regex.NoMatch:
		return false, nil
	default:
		if err == nil {
			err = &regex.MatchError{Code: rc, Message: "unknown engine error"}
		}
		return false, &Error{Kind: KindMatch, Err: err}
	}
}

// Locked serializes evaluations for hosts that call from several
// goroutines. The lock is held for the whole evaluation so a pattern cannot
// be evicted while it is being matched.
type Locked struct {
	mu sync.Mutex
	e  *Evaluator
}

// NewLocked wraps e.
func NewLocked(e *Evaluator) *Locked {
	return &Locked{e: e}
}

func (l *Locked) Evaluate(pattern, subject sql.NullString) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.Evaluate(pattern, subject)
}

// Close closes the underlying cache.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.cache.Close()
}

// Stats returns the underlying cache counters.
func (l *Locked) Stats() patcache.Stats {
	return l.e.cache.Stats()
}
