package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thebinarysearchtree/flyweight/internal/config"
	"github.com/thebinarysearchtree/flyweight/internal/log"
)

var (
	opts      config.Options
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "flyweight",
	Short:        "Evaluate REGEXP predicates with a cached pattern compiler",
	Long:         "Run SQLite queries that use the REGEXP operator, or test patterns directly, with compiled patterns cached between calls.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		opts = loaded
		logCloser = log.Setup(log.Config{
			Level:  opts.LogLevel,
			File:   opts.LogFile,
			JSON:   opts.JSONLogs(),
			Writer: cmd.ErrOrStderr(),
		})
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if logCloser == nil {
			return nil
		}
		return logCloser.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("engine", "", "Regular expression engine: re2 or pcre")
	rootCmd.PersistentFlags().Int("cache-size", 0, "Compiled patterns kept per cache (0 disables caching)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("stats", false, "Print cache statistics after running")
}

// loadOptions loads the config file and environment, then applies flags
// that were set explicitly.
func loadOptions(cmd *cobra.Command) (config.Options, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return config.Options{}, err
	}
	if flags.Changed("engine") {
		loaded.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("cache-size") {
		size, _ := flags.GetInt("cache-size")
		loaded.CacheSize = &size
	}
	if flags.Changed("log-level") {
		loaded.LogLevel, _ = flags.GetString("log-level")
	}
	return loaded, loaded.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
