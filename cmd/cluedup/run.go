package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/cluedup/internal/config"
	"github.com/steveyegge/cluedup/internal/deduplication"
	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/tabular"
)

var runCmd = &cobra.Command{
	Use:   "run INPUT",
	Short: "Deduplicate a clue file",
	Long: `Read INPUT (tab separated, or comma separated for .csv files), remove
near-duplicate records and write the survivors to --output in input order.

The run is checkpointed unless --no-checkpoint is given. Press Ctrl-C to stop
early; the progress so far is saved and the printed resume command picks up
where the run left off.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := ioOptionsFromFlags(cmd, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(executeRun(cmd, opts, ""))
	},
}

// ioOptions says where a run reads and writes.
type ioOptions struct {
	Input     string
	Output    string
	Deletions string
	Read      tabular.Options
}

func addIOFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Write surviving records here (required)")
	cmd.Flags().String("deletions", "", "Write the deletion audit log here")
	cmd.Flags().String("delimiter", "", "Field delimiter: tab or comma (default: from file extension)")
	cmd.Flags().String("quoting", string(tabular.QuoteCSV), "Quote handling: csv, or none to read quotes as plain text")
	cmd.Flags().String("key-column", tabular.DefaultKeyColumn, "Column holding the answer")
	cmd.Flags().String("body-column", tabular.DefaultBodyColumn, "Column holding the clue")
	cmd.Flags().Bool("no-checkpoint", false, "Do not checkpoint this run")
	_ = cmd.MarkFlagRequired("output")
}

func ioOptionsFromFlags(cmd *cobra.Command, input string) (ioOptions, error) {
	opts := ioOptions{Input: input}
	opts.Output, _ = cmd.Flags().GetString("output")
	opts.Deletions, _ = cmd.Flags().GetString("deletions")
	opts.Read.KeyColumn, _ = cmd.Flags().GetString("key-column")
	opts.Read.BodyColumn, _ = cmd.Flags().GetString("body-column")
	if d, _ := cmd.Flags().GetString("delimiter"); d != "" {
		delim, err := tabular.ParseDelimiter(d)
		if err != nil {
			return opts, err
		}
		opts.Read.Delimiter = delim
	}
	q, _ := cmd.Flags().GetString("quoting")
	quoting, err := tabular.ParseQuoting(q)
	if err != nil {
		return opts, err
	}
	opts.Read.Quoting = quoting
	if opts.Output == opts.Input {
		return opts, fmt.Errorf("output must differ from input")
	}
	return opts, nil
}

// executeRun runs or resumes a deduplication and prints the outcome. It
// returns the process exit code: 0 on success, 130 when interrupted.
func executeRun(cmd *cobra.Command, opts ioOptions, resumeID string) int {
	cfg, err := loadDedupConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cp, err := loadCheckpointConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint"); noCheckpoint {
		if resumeID != "" {
			fmt.Fprintf(os.Stderr, "Error: --no-checkpoint cannot be used with resume\n")
			return 1
		}
		cp.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := dedupFile(ctx, cfg, cp, opts, resumeID)
	var interrupted *deduplication.InterruptedError
	switch {
	case errors.As(err, &interrupted):
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s Interrupted at block %d; progress saved as run %s\n",
			yellow("⚠"), interrupted.NextBlock, interrupted.RunID)
		fmt.Printf("  Resume with: cluedup resume %s %s -o %s\n", interrupted.RunID, opts.Input, opts.Output)
		return 130
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printSummary(os.Stdout, result, opts)
	return 0
}

// dedupFile reads opts.Input, deduplicates it, and writes the survivors and
// the optional deletion log. Outputs are only written once the run is done.
func dedupFile(ctx context.Context, cfg deduplication.Config, cp config.CheckpointConfig, opts ioOptions, resumeID string) (*deduplication.Result, error) {
	table, err := tabular.ReadFile(opts.Input, opts.Read)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("input", opts.Input).Int("records", len(table.Records)).Msg("Input loaded")

	// Keep the interface nil when there is no store
	var store storage.CheckpointStore
	if cp.Enabled || resumeID != "" {
		db, release, err := openStore(ctx, cp, resumeID == "", true)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		defer release()
		store = db

		if resumeID == "" && cp.PruneOnStart {
			pruneExpired(ctx, db, cp)
		}
	}

	engine, err := deduplication.NewEngine(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	var result *deduplication.Result
	if resumeID != "" {
		result, err = engine.Resume(ctx, resumeID, table.Records)
	} else {
		result, err = engine.Deduplicate(ctx, table.Records)
	}
	if err != nil {
		return nil, err
	}

	if err := tabular.WriteFile(opts.Output, func(w io.Writer) error {
		return tabular.Write(w, table, result.Survivors)
	}); err != nil {
		return nil, err
	}
	if opts.Deletions != "" {
		if err := tabular.WriteFile(opts.Deletions, func(w io.Writer) error {
			return tabular.WriteDeletions(w, table, result.Deletions, table.Records)
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// pruneExpired drops completed runs past retention. Failure only warns.
func pruneExpired(ctx context.Context, store storage.CheckpointStore, cp config.CheckpointConfig) {
	cutoff, ok := cp.PruneCutoff(time.Now())
	if !ok {
		return
	}
	n, err := store.PruneCompleted(ctx, cutoff)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune expired runs")
		return
	}
	if n > 0 {
		logger.Info().Int("runs", n).Int("retention_days", cp.RetentionDays).Msg("Pruned expired runs")
	}
}

func printSummary(w io.Writer, result *deduplication.Result, opts ioOptions) {
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	s := result.Stats

	fmt.Fprintf(w, "\n%s Kept %d of %d records (%d deleted) in %s\n",
		green("✓"), s.SurvivorCount, s.TotalRecords, s.DeletedCount,
		(time.Duration(s.ProcessingTimeMs) * time.Millisecond).String())
	fmt.Fprintf(w, "  Output:      %s\n", opts.Output)
	if opts.Deletions != "" {
		fmt.Fprintf(w, "  Deletions:   %s\n", opts.Deletions)
	}
	if result.RunID != "" {
		fmt.Fprintf(w, "  Run:         %s\n", result.RunID)
	}
	fmt.Fprintf(w, "  %s\n", gray(fmt.Sprintf("compared %d records in %d answer blocks (%d rare); %d answer and %d clue comparisons",
		s.ComparedRecords, s.Blocks, s.RareBlocks, s.KeyComparisons, s.BodyComparisons)))
	if s.DegenerateKeys > 0 || s.DegenerateBodies > 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "  %s %d answers and %d clues normalized to nothing\n",
			yellow("⚠"), s.DegenerateKeys, s.DegenerateBodies)
	}
}

func init() {
	addIOFlags(runCmd)
	addConfigFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}
