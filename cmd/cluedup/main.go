package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/steveyegge/cluedup/internal/config"
)

const version = "0.3.0"

var (
	cfgPath string
	dbPath  string
	verbose bool

	// Set up by the root command before any subcommand runs.
	logger  = zerolog.Nop()
	fileCfg = &config.ConfigFile{}
)

var rootCmd = &cobra.Command{
	Use:   "cluedup",
	Short: "Remove near-duplicate clue/answer records",
	Long: `cluedup scans a table of trivia records and removes near duplicates.

Two records are duplicates when their answers are similar enough and one
clue's words are covered by the other's. The record with the richer clue
survives; the other is deleted and logged with the rule that removed it.

Long runs are checkpointed to a SQLite database and can be resumed after
an interruption with 'cluedup resume'.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; variables may come from the environment
		_ = godotenv.Load()

		logger = newLogger(os.Stderr, verbose)

		var err error
		if cfgPath != "" {
			fileCfg, err = config.LoadConfigFile(cfgPath)
		} else {
			fileCfg, err = config.LoadOptional(config.DefaultConfigPath)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: "+config.DefaultConfigPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Checkpoint database path (default: auto-discover)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-record debug output")
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
