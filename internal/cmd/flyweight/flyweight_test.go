package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thebinarysearchtree/flyweight/internal/config"
	"github.com/thebinarysearchtree/flyweight/internal/db"
	"github.com/thebinarysearchtree/flyweight/internal/patcache"
	"github.com/thebinarysearchtree/flyweight/internal/regexpfn"
)

func TestRunMatch(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	stats, err := runMatch(config.DefaultOptions(), `^ab+c$`, []string{"abbbc", "abc "}, &out)
	require.NoError(t, err)
	require.Equal(t, "true\tabbbc\nfalse\tabc \n", out.String())
	require.Equal(t, int64(1), stats.Compiles)
	require.Equal(t, int64(1), stats.Hits)
}

func TestRunMatchCompileError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := runMatch(config.DefaultOptions(), `(`, []string{"x"}, &out)
	var ee *regexpfn.Error
	require.ErrorAs(t, err, &ee)
	require.Equal(t, regexpfn.KindCompile, ee.Kind)
	require.Empty(t, out.String())
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "names.db")

	setup, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	_, err = setup.ExecContext(ctx, `CREATE TABLE names (name TEXT)`)
	require.NoError(t, err)
	_, err = setup.ExecContext(ctx, `INSERT INTO names VALUES ('ada'), ('bob'), ('abe'), (NULL)`)
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	var out bytes.Buffer
	stats, err := runQuery(ctx, config.DefaultOptions(), dsn,
		`SELECT name FROM names WHERE name IS NOT NULL AND name REGEXP '^a' ORDER BY name`, &out)
	require.NoError(t, err)
	require.Equal(t, "name\nabe\nada\n", out.String())
	require.Equal(t, int64(1), stats.Compiles)

	out.Reset()
	_, err = runQuery(ctx, config.DefaultOptions(), dsn, `SELECT name REGEXP 'a' FROM names`, &out)
	require.ErrorContains(t, err, "no string")
}

func TestWriteStats(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	writeStats(&out, patcache.Stats{Hits: 1500, Misses: 500, Compiles: 500, Evictions: 3})
	require.Equal(t, "cache: 2,000 lookups, 1,500 hits (75.0%), 500 compiles, 3 evictions, 0 compile errors\n", out.String())
}

func TestMatchCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"match", "--engine", "pcre", "--cache-size", "2", "--stats", `\d+(?= apples)`, "3 apples", "3 pears"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{"true\t3 apples", "false\t3 pears", "cache: 2 lookups, 1 hits (50.0%), 1 compiles, 0 evictions, 0 compile errors"}, lines)
	require.Equal(t, "pcre", opts.Engine)
	require.Equal(t, 2, opts.CacheCapacity())
}
