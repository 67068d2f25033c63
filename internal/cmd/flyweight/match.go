package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thebinarysearchtree/flyweight/internal/config"
	"github.com/thebinarysearchtree/flyweight/internal/patcache"
	"github.com/thebinarysearchtree/flyweight/internal/regex"
	"github.com/thebinarysearchtree/flyweight/internal/regexpfn"
)

var matchCmd = &cobra.Command{
	Use:   "match PATTERN SUBJECT...",
	Short: "Test subjects against a pattern",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := runMatch(opts, args[0], args[1:], cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if printStats, _ := cmd.Flags().GetBool("stats"); printStats {
			writeStats(cmd.OutOrStdout(), stats)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}

// runMatch evaluates pattern against every subject through a single cache
// and writes one "true" or "false" line per subject.
func runMatch(o config.Options, pattern string, subjects []string, w io.Writer) (patcache.Stats, error) {
	engine, err := regex.New(o.Engine, regex.Options{
		MaxProgramSize: o.ProgramSizeLimit(),
		MatchTimeout:   o.Timeout(),
	})
	if err != nil {
		return patcache.Stats{}, err
	}
	strategy, err := patcache.ParseStrategy(o.CacheStrategy)
	if err != nil {
		return patcache.Stats{}, err
	}
	cache, err := patcache.New(engine,
		patcache.WithCapacity(o.CacheCapacity()),
		patcache.WithStrategy(strategy),
	)
	if err != nil {
		return patcache.Stats{}, err
	}
	defer cache.Close()

	e := regexpfn.New(cache)
	p := sql.NullString{String: pattern, Valid: true}
	for _, s := range subjects {
		ok, err := e.Evaluate(p, sql.NullString{String: s, Valid: true})
		if err != nil {
			return cache.Stats(), err
		}
		fmt.Fprintf(w, "%t\t%s\n", ok, s)
	}
	return cache.Stats(), nil
}
