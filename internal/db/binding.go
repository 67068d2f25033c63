package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebinarysearchtree/flyweight/internal/config"
	"github.com/thebinarysearchtree/flyweight/internal/patcache"
	"github.com/thebinarysearchtree/flyweight/internal/regex"
	"github.com/thebinarysearchtree/flyweight/internal/regexpfn"
)

// FunctionName is the SQL name of the predicate. SQLite rewrites
// `subject REGEXP pattern` to `regexp(pattern, subject)`.
const FunctionName = "regexp"

const meterName = "github.com/thebinarysearchtree/flyweight/internal/db"

var (
	// ErrAlreadyRegistered is returned by Register while another binding is
	// active.
	ErrAlreadyRegistered = errors.New("regexp function already registered")
	// ErrNotRegistered is reported by the SQL function when no binding is
	// active.
	ErrNotRegistered = errors.New("regexp function not registered")
)

// active is the binding served by the driver-level function registration.
// Drivers register SQL functions process-wide, so only one binding can be
// active at a time.
var active atomic.Pointer[Binding]

// Option configures Register.
type Option func(*Binding)

// WithEngine overrides the engine selected by the options.
func WithEngine(e regex.Engine) Option {
	return func(b *Binding) { b.engine = e }
}

// WithMeterProvider publishes cache counters to mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *Binding) { b.meterProvider = mp }
}

// Binding installs the REGEXP function and owns every pattern cache created
// for it.
type Binding struct {
	opts          config.Options
	engine        regex.Engine
	strategy      patcache.Strategy
	meterProvider metric.MeterProvider
	registration  metric.Registration

	// shared serves every connection on drivers that only register
	// functions process-wide. It is set before the binding is published.
	shared *regexpfn.Locked

	mu      sync.Mutex
	caches  []*regexpfn.Locked
	closed  bool
	retired patcache.Stats
}

// Register builds a binding from opts and installs the REGEXP function on
// the SQLite driver. A binding whose cache cannot be built is not installed.
func Register(opts config.Options, options ...Option) (*Binding, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid regexp options: %w", err)
	}
	strategy, err := patcache.ParseStrategy(opts.CacheStrategy)
	if err != nil {
		return nil, err
	}

	b := &Binding{opts: opts, strategy: strategy, meterProvider: otel.GetMeterProvider()}
	for _, o := range options {
		o(b)
	}
	if b.engine == nil {
		b.engine, err = regex.New(opts.Engine, regex.Options{
			MaxProgramSize: opts.ProgramSizeLimit(),
			MatchTimeout:   opts.Timeout(),
		})
		if err != nil {
			return nil, err
		}
	}

	// Build one cache up front so allocation errors surface here.
	probe, err := b.newCache()
	if err != nil {
		return nil, err
	}
	_ = probe.Close()

	if err := b.registerMetrics(); err != nil {
		return nil, fmt.Errorf("registering regexp metrics: %w", err)
	}

	if sharedCache {
		if b.shared, err = b.newPredicate(); err != nil {
			b.unregisterMetrics()
			return nil, err
		}
	}

	if !active.CompareAndSwap(nil, b) {
		_ = b.Close()
		return nil, ErrAlreadyRegistered
	}
	if err := install(b); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("installing %s function: %w", FunctionName, err)
	}

	slog.Debug("Registered regexp function",
		"driver", DriverName,
		"engine", b.engine.Name(),
		"cache_size", opts.CacheCapacity(),
		"cache_strategy", strategy.String(),
	)
	return b, nil
}

func (b *Binding) newCache() (*patcache.Cache, error) {
	cache, err := patcache.New(b.engine,
		patcache.WithCapacity(b.opts.CacheCapacity()),
		patcache.WithStrategy(b.strategy),
	)
	if err != nil {
		return nil, fmt.Errorf("allocating pattern cache: %w", err)
	}
	return cache, nil
}

// newPredicate creates a predicate with its own cache. The binding releases
// the cache on Close.
func (b *Binding) newPredicate() (*regexpfn.Locked, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrNotRegistered
	}
	cache, err := b.newCache()
	if err != nil {
		return nil, err
	}
	p := regexpfn.NewLocked(regexpfn.New(cache))
	b.caches = append(b.caches, p)
	return p, nil
}

// release closes a predicate whose connection is gone and keeps its counters
// in the binding totals. Predicates already released by Close are ignored.
func (b *Binding) release(p *regexpfn.Locked) {
	b.mu.Lock()
	i := slices.Index(b.caches, p)
	if i < 0 {
		b.mu.Unlock()
		return
	}
	b.caches = slices.Delete(b.caches, i, i+1)
	b.retired = b.retired.Add(p.Stats())
	b.mu.Unlock()

	if err := p.Close(); err != nil {
		slog.Warn("Failed to release regexp cache", "error", err)
	}
}

// Engine returns the engine compiling patterns for this binding.
func (b *Binding) Engine() regex.Engine { return b.engine }

// Stats aggregates the counters of every cache created by the binding.
func (b *Binding) Stats() patcache.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := b.retired
	for _, c := range b.caches {
		total = total.Add(c.Stats())
	}
	return total
}

// Close uninstalls the binding and releases every cached pattern. Close is
// safe to call more than once.
func (b *Binding) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	caches := b.caches
	b.caches = nil
	b.mu.Unlock()

	active.CompareAndSwap(b, nil)

	var errs []error
	var retired patcache.Stats
	for _, c := range caches {
		retired = retired.Add(c.Stats())
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.retired = b.retired.Add(retired)
	b.mu.Unlock()

	b.unregisterMetrics()
	return errors.Join(errs...)
}

func (b *Binding) registerMetrics() error {
	meter := b.meterProvider.Meter(meterName)

	hits, err := meter.Int64ObservableCounter("regexp.cache.hits",
		metric.WithDescription("Pattern cache lookups served from the cache"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter("regexp.cache.misses",
		metric.WithDescription("Pattern cache lookups that required compilation"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return err
	}
	evictions, err := meter.Int64ObservableCounter("regexp.cache.evictions",
		metric.WithDescription("Compiled patterns evicted from the cache"),
		metric.WithUnit("{pattern}"))
	if err != nil {
		return err
	}
	compiles, err := meter.Int64ObservableCounter("regexp.cache.compiles",
		metric.WithDescription("Patterns compiled successfully"),
		metric.WithUnit("{pattern}"))
	if err != nil {
		return err
	}

	b.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := b.Stats()
		o.ObserveInt64(hits, s.Hits)
		o.ObserveInt64(misses, s.Misses)
		o.ObserveInt64(evictions, s.Evictions)
		o.ObserveInt64(compiles, s.Compiles)
		return nil
	}, hits, misses, evictions, compiles)
	return err
}

func (b *Binding) unregisterMetrics() {
	if b.registration == nil {
		return
	}
	if err := b.registration.Unregister(); err != nil {
		slog.Warn("Failed to unregister regexp metrics", "error", err)
	}
	b.registration = nil
}

// evaluate runs p and logs failures the host reports back to the caller.
func evaluate(p regexpfn.Predicate, pattern, subject sql.NullString) (bool, error) {
	ok, err := p.Evaluate(pattern, subject)
	if err != nil {
		var ee *regexpfn.Error
		if errors.As(err, &ee) && ee.Kind == regexpfn.KindCompile {
			slog.Warn("Failed to compile regexp", "pattern", pattern.String, "error", err)
		}
		return false, err
	}
	return ok, nil
}

// textArg converts a driver argument to text the way SQLite's
// sqlite3_value_text does. NULL becomes an invalid NullString.
func textArg(v driver.Value) sql.NullString {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: v, Valid: true}
	case []byte:
		return sql.NullString{String: string(v), Valid: true}
	case int64:
		return sql.NullString{String: strconv.FormatInt(v, 10), Valid: true}
	case float64:
		return sql.NullString{String: strconv.FormatFloat(v, 'g', -1, 64), Valid: true}
	case bool:
		if v {
			return sql.NullString{String: "1", Valid: true}
		}
		return sql.NullString{String: "0", Valid: true}
	case time.Time:
		return sql.NullString{String: v.Format(time.RFC3339Nano), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
}

// Open opens a database on the driver the binding is installed on and
// verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}
