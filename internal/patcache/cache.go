// Package patcache memoizes compiled regular expressions keyed by their
// source text in a small fixed-capacity move-to-front cache.
//
// A Cache owns every pattern it holds: patterns are released when evicted,
// purged or when the cache is closed. A Cache is not safe for concurrent use.
package patcache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/thebinarysearchtree/flyweight/internal/regex"
)

const (
	// DefaultCapacity is the number of compiled patterns kept per cache.
	DefaultCapacity = 16
	// ArrayThreshold is the largest capacity served by the array strategy
	// when the strategy is chosen automatically.
	ArrayThreshold = 64
)

var (
	// ErrClosed is returned by Lookup after Close.
	ErrClosed = errors.New("pattern cache is closed")
	// ErrInvalidCapacity is returned by New for a negative capacity.
	ErrInvalidCapacity = errors.New("pattern cache capacity must not be negative")
)

// Strategy selects the storage behind a Cache.
type Strategy int

const (
	// StrategyAuto uses StrategyArray up to ArrayThreshold entries and
	// StrategyList above it.
	StrategyAuto Strategy = iota
	// StrategyArray keeps entries in a slice ordered by recency and moves
	// them with block copies.
	StrategyArray
	// StrategyList keeps entries in a linked list indexed by a map.
	StrategyList
)

func (s Strategy) String() string {
	switch s {
	case StrategyArray:
		return "array"
	case StrategyList:
		return "list"
	default:
		return "auto"
	}
}

// ParseStrategy parses the names returned by Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "auto":
		return StrategyAuto, nil
	case "array":
		return StrategyArray, nil
	case "list":
		return StrategyList, nil
	default:
		return StrategyAuto, fmt.Errorf("unknown cache strategy %q", s)
	}
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Evictions     int64
	Compiles      int64
	CompileErrors int64
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Hits:          s.Hits + o.Hits,
		Misses:        s.Misses + o.Misses,
		Evictions:     s.Evictions + o.Evictions,
		Compiles:      s.Compiles + o.Compiles,
		CompileErrors: s.CompileErrors + o.CompileErrors,
	}
}

// entry owns a key and the pattern compiled from it.
type entry struct {
	key     string
	pattern regex.Pattern
}

func (e *entry) release() {
	if e.pattern != nil {
		e.pattern.Release()
		e.pattern = nil
	}
}

// store holds entries ordered from most to least recently used.
type store interface {
	// get returns the pattern for key and moves it to the front.
	get(key string) (regex.Pattern, bool)
	// push inserts e at the front. When the store is full the least
	// recently used entry is removed first and returned.
	push(e entry) (evicted entry, ok bool)
	keys() []string
	len() int
	// drain removes every entry, oldest first.
	drain(fn func(entry))
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	capacity int
	strategy Strategy
}

// WithCapacity sets the number of entries kept. Zero disables caching.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithStrategy forces a storage strategy.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// Cache maps pattern text to compiled patterns.
type Cache struct {
	engine   regex.Engine
	store    store
	capacity int
	strategy Strategy

	// uncached holds the last pattern compiled by a zero-capacity cache
	// until the next Lookup or Close.
	uncached *entry
	closed   bool

	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	compiles      atomic.Int64
	compileErrors atomic.Int64
}

// New returns an empty cache that compiles misses with engine.
func New(engine regex.Engine, opts ...Option) (*Cache, error) {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, o.capacity)
	}

	c := &Cache{engine: engine, capacity: o.capacity}
	if o.capacity == 0 {
		return c, nil
	}

	strategy := o.strategy
	if strategy == StrategyAuto {
		strategy = StrategyArray
		if o.capacity > ArrayThreshold {
			strategy = StrategyList
		}
	}
	c.strategy = strategy

	switch strategy {
	case StrategyArray:
		c.store = newArrayStore(o.capacity)
	case StrategyList:
		s, err := newListStore(o.capacity)
		if err != nil {
			return nil, err
		}
		c.store = s
	default:
		return nil, fmt.Errorf("unknown cache strategy %d", strategy)
	}
	return c, nil
}

// Lookup returns the compiled pattern for key, compiling and inserting it on
// a miss. A hit moves the entry to the front. When the cache is full the
// least recently used entry is evicted and released.
//
// The returned pattern is owned by the cache and stays valid only until the
// next Lookup, Purge or Close. Compile failures are returned as
// *regex.CompileError and leave the cache unchanged.
func (c *Cache) Lookup(key string) (regex.Pattern, error) {
	if c.closed {
		return nil, ErrClosed
	}

	if c.store != nil {
		if p, ok := c.store.get(key); ok {
			c.hits.Add(1)
			return p, nil
		}
	}
	c.misses.Add(1)

	p, err := regex.Prepare(c.engine, key)
	if err != nil {
		c.compileErrors.Add(1)
		return nil, err
	}
	c.compiles.Add(1)

	if c.store == nil {
		if c.uncached != nil {
			c.uncached.release()
		}
		c.uncached = &entry{key: key, pattern: p}
		return p, nil
	}

	if evicted, ok := c.store.push(entry{key: key, pattern: p}); ok {
		c.evictions.Add(1)
		slog.Debug("Evicted compiled pattern", "pattern", evicted.key)
		evicted.release()
	}
	return p, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	if c.store == nil {
		return 0
	}
	return c.store.len()
}

// Cap returns the configured capacity.
func (c *Cache) Cap() int { return c.capacity }

// Strategy returns the storage strategy in use. It is StrategyAuto for a
// zero-capacity cache.
func (c *Cache) Strategy() Strategy { return c.strategy }

// Keys returns the cached pattern texts from most to least recently used.
func (c *Cache) Keys() []string {
	if c.store == nil {
		return nil
	}
	return c.store.keys()
}

// Stats returns a snapshot of the cache counters. It may be called from any
// goroutine.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		Compiles:      c.compiles.Load(),
		CompileErrors: c.compileErrors.Load(),
	}
}

// Purge releases every cached pattern.
func (c *Cache) Purge() {
	if c.uncached != nil {
		c.uncached.release()
		c.uncached = nil
	}
	if c.store != nil {
		c.store.drain(func(e entry) { e.release() })
	}
}

// Close purges the cache. Lookups after Close fail with ErrClosed. Close is
// safe to call more than once.
func (c *Cache) Close() error {
	if c.closed {
		return nil
	}
	c.Purge()
	c.closed = true
	return nil
}
