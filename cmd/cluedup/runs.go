package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and clean up checkpointed runs",
	Long:  `Commands for listing, inspecting and deleting runs in the checkpoint database.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed runs",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, release := mustOpenExistingStore(ctx, false)
		defer release()

		runs, err := store.ListRuns(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list runs: %v\n", err)
			os.Exit(1)
		}
		printRuns(os.Stdout, runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its deletions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()
		store, release := mustOpenExistingStore(ctx, false)
		defer release()

		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		deletions, err := store.LoadDeletions(ctx, run.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load deletions: %v\n", err)
			os.Exit(1)
		}
		printRun(os.Stdout, run, deletions, limit)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and its deletions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, release := mustOpenExistingStore(ctx, true)
		defer release()

		if err := store.DeleteRun(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted run %s\n", green("✓"), args[0])
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete completed runs past retention",
	Long: `Delete completed runs that have not been updated within the retention
period. Incomplete runs are never pruned.

Examples:
  cluedup runs prune                       # Use the configured retention (default 30 days)
  cluedup runs prune --retention-days 7    # Keep one week of completed runs`,
	Run: func(cmd *cobra.Command, args []string) {
		cp, err := loadCheckpointConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cmd.Flags().Changed("retention-days") {
			cp.RetentionDays, _ = cmd.Flags().GetInt("retention-days")
			if err := cp.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		cutoff, ok := cp.PruneCutoff(time.Now())
		if !ok {
			fmt.Println("Retention is unlimited; nothing to prune")
			return
		}

		ctx := context.Background()
		store, release := mustOpenExistingStore(ctx, true)
		defer release()

		n, err := store.PruneCompleted(ctx, cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: prune failed: %v\n", err)
			os.Exit(1)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Pruned %d completed run(s) older than %d days\n", green("✓"), n, cp.RetentionDays)
	},
}

// mustOpenExistingStore opens the checkpoint database without creating one.
// Commands that delete runs take the run lock so they cannot race a dedup.
func mustOpenExistingStore(ctx context.Context, lock bool) (storage.CheckpointStore, func()) {
	cp, err := loadCheckpointConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, release, err := openStore(ctx, cp, false, lock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return store, release
}

func runStatus(run *storage.Run) (string, func(a ...interface{}) string) {
	if run.Complete {
		return "complete", color.New(color.FgGreen).SprintFunc()
	}
	return "interrupted", color.New(color.FgYellow).SprintFunc()
}

func printRuns(w io.Writer, runs []*storage.Run) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	if len(runs) == 0 {
		fmt.Fprintf(w, "%s\n", gray("No runs"))
		return
	}
	for _, run := range runs {
		status, statusColor := runStatus(run)
		fmt.Fprintf(w, "%s  %-11s %5.1f%%  %6d records  %6d deleted  %s\n",
			run.ID, statusColor(status), run.Progress()*100, run.TotalRecords, run.Deleted,
			gray(run.UpdatedAt.Local().Format("2006-01-02 15:04:05")))
	}
}

func printRun(w io.Writer, run *storage.Run, deletions []types.Deletion, limit int) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	status, statusColor := runStatus(run)

	fmt.Fprintf(w, "%s\n", cyan("Run "+run.ID))
	fmt.Fprintf(w, "  Status:      %s\n", statusColor(status))
	fmt.Fprintf(w, "  Progress:    %d/%d blocks (%.1f%%)\n", run.NextBlock, run.TotalBlocks, run.Progress()*100)
	fmt.Fprintf(w, "  Records:     %d\n", run.TotalRecords)
	fmt.Fprintf(w, "  Deleted:     %d\n", len(deletions))
	fmt.Fprintf(w, "  Fingerprint: %s\n", run.Fingerprint)
	fmt.Fprintf(w, "  Started:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Updated:     %s\n", run.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if len(deletions) == 0 {
		return
	}
	fmt.Fprintln(w)
	for i, d := range deletions {
		if limit > 0 && i == limit {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Fprintf(w, "  %s\n", gray(fmt.Sprintf("... %d more", len(deletions)-limit)))
			break
		}
		fmt.Fprintf(w, "  %6d -> %-6d %s\n", d.RecordID, d.SupersededBy, d.Reason)
	}
}

func init() {
	runsShowCmd.Flags().Int("limit", 20, "Show at most this many deletions (0 for all)")
	runsPruneCmd.Flags().Int("retention-days", 0, "Override the configured retention")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}
