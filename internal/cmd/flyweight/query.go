package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/thebinarysearchtree/flyweight/internal/config"
	"github.com/thebinarysearchtree/flyweight/internal/db"
	"github.com/thebinarysearchtree/flyweight/internal/patcache"
)

var queryCmd = &cobra.Command{
	Use:   "query SQL",
	Short: "Run a SQL query with the REGEXP function installed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, _ := cmd.Flags().GetString("db")
		stats, err := runQuery(cmd.Context(), opts, dsn, args[0], cmd.OutOrStdout())
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
	queryCmd.Flags().String("db", ":memory:", "Database path or DSN")
	rootCmd.AddCommand(queryCmd)
}

// runQuery runs query against dsn and writes the rows tab-separated with a
// header line.
func runQuery(ctx context.Context, o config.Options, dsn, query string, w io.Writer) (patcache.Stats, error) {
	binding, err := db.Register(o)
	if err != nil {
		return patcache.Stats{}, err
	}
	defer binding.Close()

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return patcache.Stats{}, err
	}
	defer conn.Close()

	if err := writeRows(ctx, conn, query, w); err != nil {
		return binding.Stats(), err
	}
	return binding.Stats(), nil
}

func writeRows(ctx context.Context, conn *sql.DB, query string, w io.Writer) error {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns: %w", err)
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	fields := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func writeStats(w io.Writer, s patcache.Stats) {
	lookups := s.Hits + s.Misses
	ratio := 0.0
	if lookups > 0 {
		ratio = float64(s.Hits) / float64(lookups) * 100
	}
	fmt.Fprintf(w, "cache: %s lookups, %s hits (%.1f%%), %s compiles, %s evictions, %s compile errors\n",
		humanize.Comma(lookups),
		humanize.Comma(s.Hits),
		ratio,
		humanize.Comma(s.Compiles),
		humanize.Comma(s.Evictions),
		humanize.Comma(s.CompileErrors),
	)
}
