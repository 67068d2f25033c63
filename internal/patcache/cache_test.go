package patcache

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thebinarysearchtree/flyweight/internal/regex"
)

var strategies = []Strategy{StrategyArray, StrategyList}

func newTestCache(t *testing.T, capacity int, strategy Strategy) (*Cache, *regex.Counting) {
	t.Helper()

	engine := regex.NewCounting(regex.NewRE2(0))
	c, err := New(engine, WithCapacity(capacity), WithStrategy(strategy))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, c.Close())
		stats := engine.Stats()
		require.Zero(t, stats.LivePatterns(), "every compiled pattern must be released")
		require.Zero(t, stats.DoubleReleases)
	})
	return c, engine
}

func lookupAll(t *testing.T, c *Cache, keys ...string) {
	t.Helper()
	for _, k := range keys {
		p, err := c.Lookup(k)
		require.NoError(t, err)
		require.Equal(t, k, p.Source())
	}
}

func TestCacheScenarios(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			t.Run("evicts oldest", func(t *testing.T) {
				c, _ := newTestCache(t, 2, strategy)
				lookupAll(t, c, "a", "b", "c")
				require.Equal(t, []string{"c", "b"}, c.Keys())
				require.Equal(t, int64(1), c.Stats().Evictions)
			})

			t.Run("promotion protects entry", func(t *testing.T) {
				c, _ := newTestCache(t, 2, strategy)
				lookupAll(t, c, "a", "b", "a", "c")
				require.Equal(t, []string{"c", "a"}, c.Keys())
			})

			t.Run("hit at front does not move", func(t *testing.T) {
				c, _ := newTestCache(t, 3, strategy)
				lookupAll(t, c, "a", "b", "c", "c")
				require.Equal(t, []string{"c", "b", "a"}, c.Keys())
			})

			t.Run("promotion from the back", func(t *testing.T) {
				c, _ := newTestCache(t, 4, strategy)
				lookupAll(t, c, "a", "b", "c", "d", "a")
				require.Equal(t, []string{"a", "d", "c", "b"}, c.Keys())
			})
		})
	}
}

func TestCacheLRUEvictsFirstInserted(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			c, engine := newTestCache(t, DefaultCapacity, strategy)
			var keys []string
			for i := range DefaultCapacity + 1 {
				keys = append(keys, fmt.Sprintf("k%d", i))
			}
			lookupAll(t, c, keys...)

			require.Equal(t, DefaultCapacity, c.Len())
			require.NotContains(t, c.Keys(), "k0")
			require.Equal(t, fmt.Sprintf("k%d", DefaultCapacity), c.Keys()[0])

			stats := engine.Stats()
			require.Equal(t, int64(DefaultCapacity+1), stats.Compiles)
			require.Equal(t, int64(1), stats.Releases, "exactly one entry is evicted")
		})
	}
}

func TestCacheIdempotentHit(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			c, engine := newTestCache(t, 4, strategy)
			first, err := c.Lookup("x+")
			require.NoError(t, err)
			for range 10 {
				p, err := c.Lookup("x+")
				require.NoError(t, err)
				require.Same(t, first, p)
				require.Equal(t, 1, c.Len())
			}
			require.Equal(t, int64(1), engine.Stats().Compiles)

			stats := c.Stats()
			require.Equal(t, int64(10), stats.Hits)
			require.Equal(t, int64(1), stats.Misses)
		})
	}
}

func TestCacheKeysAreExact(t *testing.T) {
	t.Parallel()

	c, engine := newTestCache(t, 4, StrategyArray)
	lookupAll(t, c, "a+", "a+ ", "(?:a+)")
	require.Equal(t, 3, c.Len())
	require.Equal(t, int64(3), engine.Stats().Compiles)
}

func TestCacheCompileErrorLeavesCacheUnchanged(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			c, engine := newTestCache(t, 2, strategy)
			lookupAll(t, c, "a", "b")

			_, err := c.Lookup("(unbalanced")
			var ce *regex.CompileError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, "(unbalanced", ce.Pattern)

			require.Equal(t, []string{"b", "a"}, c.Keys())
			require.Zero(t, engine.Stats().Releases)
			require.Equal(t, int64(1), c.Stats().CompileErrors)
		})
	}
}

func TestCachePrepareFailureReleasesPattern(t *testing.T) {
	t.Parallel()

	engine := regex.NewCounting(regex.NewRE2(8))
	c, err := New(engine, WithCapacity(2))
	require.NoError(t, err)

	_, err = c.Lookup("a{40}")
	require.Error(t, err)
	require.Zero(t, c.Len())
	require.Equal(t, int64(1), engine.Stats().Compiles)
	require.Zero(t, engine.Stats().LivePatterns())

	require.NoError(t, c.Close())
}

func TestCacheZeroCapacity(t *testing.T) {
	t.Parallel()

	c, engine := newTestCache(t, 0, StrategyAuto)
	for range 3 {
		p, err := c.Lookup("a")
		require.NoError(t, err)
		require.Equal(t, "a", p.Source())
		require.Zero(t, c.Len())
		require.Empty(t, c.Keys())
	}

	stats := engine.Stats()
	require.Equal(t, int64(3), stats.Compiles)
	require.Equal(t, int64(2), stats.Releases, "only the latest uncached pattern is live")
}

func TestCacheNegativeCapacity(t *testing.T) {
	t.Parallel()

	_, err := New(regex.NewRE2(0), WithCapacity(-1))
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestCacheAutoStrategy(t *testing.T) {
	t.Parallel()

	small, err := New(regex.NewRE2(0))
	require.NoError(t, err)
	require.Equal(t, StrategyArray, small.Strategy())
	require.Equal(t, DefaultCapacity, small.Cap())

	large, err := New(regex.NewRE2(0), WithCapacity(ArrayThreshold+1))
	require.NoError(t, err)
	require.Equal(t, StrategyList, large.Strategy())
}

func TestCacheCloseReleasesEverything(t *testing.T) {
	t.Parallel()

	engine := regex.NewCounting(regex.NewRE2(0))
	c, err := New(engine, WithCapacity(3))
	require.NoError(t, err)
	lookupAll(t, c, "a", "b", "c", "d")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Zero(t, c.Len())
	require.Zero(t, engine.Stats().LivePatterns())

	_, err = c.Lookup("a")
	require.ErrorIs(t, err, ErrClosed)
}

func TestCachePurge(t *testing.T) {
	t.Parallel()

	c, engine := newTestCache(t, 3, StrategyList)
	lookupAll(t, c, "a", "b")
	c.Purge()
	require.Zero(t, c.Len())
	require.Zero(t, engine.Stats().LivePatterns())

	lookupAll(t, c, "a")
	require.Equal(t, []string{"a"}, c.Keys())
}

// TestCacheMatchesModel drives random lookups and compares the cache with a
// plain move-to-front slice after every step.
func TestCacheMatchesModel(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		for _, capacity := range []int{1, 2, 5, 16} {
			t.Run(fmt.Sprintf("%s/%d", strategy, capacity), func(t *testing.T) {
				t.Parallel()

				c, engine := newTestCache(t, capacity, strategy)
				rng := rand.New(rand.NewPCG(uint64(capacity), 42))

				var model []string
				for range 500 {
					key := fmt.Sprintf("p%d", rng.IntN(capacity*3))
					_, err := c.Lookup(key)
					require.NoError(t, err)

					if i := slices.Index(model, key); i >= 0 {
						model = slices.Delete(model, i, i+1)
					} else if len(model) == capacity {
						model = model[:capacity-1]
					}
					model = slices.Insert(model, 0, key)

					keys := c.Keys()
					require.Equal(t, model, keys)
					require.LessOrEqual(t, len(keys), capacity)
					require.Equal(t, int64(c.Len()), engine.Stats().LivePatterns())
				}
			})
		}
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	for _, s := range []Strategy{StrategyAuto, StrategyArray, StrategyList} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseStrategy("tree")
	require.Error(t, err)
}
