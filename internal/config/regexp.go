package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override file options.
const EnvPrefix = "FLYWEIGHT_"

// Options configures the REGEXP function.
type Options struct {
	// CacheSize is the number of compiled patterns kept per cache. Zero
	// disables caching. Nil uses the default of 16.
	CacheSize *int `json:"cache_size,omitempty" yaml:"cache_size,omitempty" jsonschema:"description=Compiled patterns kept per cache (0 disables caching)"`
	// CacheStrategy forces the cache storage: auto, array or list.
	CacheStrategy string `json:"cache_strategy,omitempty" yaml:"cache_strategy,omitempty" jsonschema:"description=Cache storage: auto array or list"`
	// Engine selects the regular expression engine: re2 or pcre.
	Engine string `json:"engine,omitempty" yaml:"engine,omitempty" jsonschema:"description=Regular expression engine: re2 or pcre"`
	// MaxProgramSize rejects re2 patterns that compile to more
	// instructions. Zero or nil means unlimited.
	MaxProgramSize *int `json:"max_program_size,omitempty" yaml:"max_program_size,omitempty"`
	// MatchTimeout bounds a single pcre match. Zero or nil means no limit.
	MatchTimeout *time.Duration `json:"match_timeout,omitempty" yaml:"match_timeout,omitempty"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	// LogFile sends logs to a rotated file instead of stderr.
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	// LogJSON switches the log format to JSON.
	LogJSON *bool `json:"log_json,omitempty" yaml:"log_json,omitempty"`
}

// DefaultOptions returns Options with default values applied.
func DefaultOptions() Options {
	size := 16
	return Options{
		CacheSize:     &size,
		CacheStrategy: "auto",
		Engine:        "re2",
		LogLevel:      "info",
	}
}

// merge overlays the values set in t. Pointer fields let t reset a value to
// zero or false.
func (o Options) merge(t Options) Options {
	o.CacheSize = override(o.CacheSize, t.CacheSize)
	o.CacheStrategy = cmp.Or(t.CacheStrategy, o.CacheStrategy)
	o.Engine = cmp.Or(t.Engine, o.Engine)
	o.MaxProgramSize = override(o.MaxProgramSize, t.MaxProgramSize)
	o.MatchTimeout = override(o.MatchTimeout, t.MatchTimeout)
	o.LogLevel = cmp.Or(t.LogLevel, o.LogLevel)
	o.LogFile = cmp.Or(t.LogFile, o.LogFile)
	o.LogJSON = override(o.LogJSON, t.LogJSON)
	return o
}

// override returns a copy of t when set, otherwise o.
func override[T any](o, t *T) *T {
	if t == nil {
		return o
	}
	v := *t
	return &v
}

func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// CacheCapacity returns the configured cache size.
func (o Options) CacheCapacity() int {
	if o.CacheSize == nil {
		return 16
	}
	return *o.CacheSize
}

// ProgramSizeLimit returns the re2 program size limit, 0 when unlimited.
func (o Options) ProgramSizeLimit() int { return value(o.MaxProgramSize) }

// Timeout returns the pcre match timeout, 0 when unbounded.
func (o Options) Timeout() time.Duration { return value(o.MatchTimeout) }

// JSONLogs reports whether logs are written as JSON.
func (o Options) JSONLogs() bool { return value(o.LogJSON) }

// Validate checks option values.
func (o Options) Validate() error {
	var errs []error
	if o.CacheSize != nil && *o.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", *o.CacheSize))
	}
	if n := o.ProgramSizeLimit(); n < 0 {
		errs = append(errs, fmt.Errorf("max_program_size must not be negative, got %d", n))
	}
	if d := o.Timeout(); d < 0 {
		errs = append(errs, fmt.Errorf("match_timeout must not be negative, got %s", d))
	}
	switch o.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", o.LogLevel))
	}
	return errors.Join(errs...)
}

// Load reads options from path, when non-empty, on top of the defaults and
// applies FLYWEIGHT_* environment overrides.
func Load(path string) (Options, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Options, error) {
	opts := DefaultOptions()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Options{}, fmt.Errorf("reading config: %w", err)
		}
		var file Options
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Options{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		opts = opts.merge(file)
	}

	env, err := fromEnv(lookup)
	if err != nil {
		return Options{}, err
	}
	opts = opts.merge(env)

	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid config: %w", err)
	}
	return opts, nil
}

func fromEnv(lookup func(string) (string, bool)) (Options, error) {
	var o Options
	if v, ok := lookup(EnvPrefix + "CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("parsing %sCACHE_SIZE: %w", EnvPrefix, err)
		}
		o.CacheSize = &n
	}
	if v, ok := lookup(EnvPrefix + "MAX_PROGRAM_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("parsing %sMAX_PROGRAM_SIZE: %w", EnvPrefix, err)
		}
		o.MaxProgramSize = &n
	}
	if v, ok := lookup(EnvPrefix + "MATCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Options{}, fmt.Errorf("parsing %sMATCH_TIMEOUT: %w", EnvPrefix, err)
		}
		o.MatchTimeout = &d
	}
	if v, ok := lookup(EnvPrefix + "LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("parsing %sLOG_JSON: %w", EnvPrefix, err)
		}
		o.LogJSON = &b
	}
	o.CacheStrategy, _ = lookup(EnvPrefix + "CACHE_STRATEGY")
	o.Engine, _ = lookup(EnvPrefix + "ENGINE")
	o.LogLevel, _ = lookup(EnvPrefix + "LOG_LEVEL")
	o.LogFile, _ = lookup(EnvPrefix + "LOG_FILE")
	return o, nil
}
