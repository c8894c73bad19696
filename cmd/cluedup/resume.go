package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id> INPUT",
	Short: "Resume an interrupted run",
	Long: `Continue a checkpointed run from the last saved answer block.

The input file and every setting that affects the result must be the same as
when the run started; otherwise the checkpoint is rejected. Worker count,
batch size and checkpoint interval may change between attempts.

Resuming a run that already finished rebuilds its output from the stored
deletions without comparing anything again.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runID := args[0]
		opts, err := ioOptionsFromFlags(cmd, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(executeRun(cmd, opts, runID))
	},
}

func init() {
	addIOFlags(resumeCmd)
	addConfigFlags(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}
