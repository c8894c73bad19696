package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/cluedup/internal/blocking"
	"github.com/steveyegge/cluedup/internal/deduplication"
	"github.com/steveyegge/cluedup/internal/normalize"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/threshold"
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Print the effective similarity thresholds",
	Long: `Print the minimum answer similarity for each normalized answer length and
the minimum clue overlap for each clue word count, as configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadDedupConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		maxLen, _ := cmd.Flags().GetInt("max-len")
		maxBag, _ := cmd.Flags().GetInt("max-words")
		if err := printThresholds(os.Stdout, cfg, maxLen, maxBag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize ANSWER CLUE [ANSWER CLUE]",
	Short: "Show how records normalize and compare",
	Long: `Show the normalized answer and clue word bag for one record. Given two
records, also show their similarity scores and which one would survive.

Examples:
  cluedup normalize "W.A. Mozart" "Composed 'The Magic Flute'"
  cluedup normalize Mozart "wrote a requiem" "W.A. Mozart" "wrote a requiem in Vienna"`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("want 2 or 4 arguments, got %d", len(args))
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadDedupConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := printNormalized(os.Stdout, cfg, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func printThresholds(w io.Writer, cfg deduplication.Config, maxLen, maxBag int) error {
	policy, err := threshold.NewPolicy(cfg.KeyThresholds, cfg.BodyThreshold)
	if err != nil {
		return err
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s\n", cyan(fmt.Sprintf("Answer similarity (%s)", cfg.KeyMetric)))
	for n := 1; n <= maxLen; n++ {
		t, err := policy.KeyThreshold(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %3d chars  %.3f\n", n, t)
	}
	fmt.Fprintf(w, "  %3s        %.3f\n", ">", cfg.KeyThresholds.Floor)

	fmt.Fprintf(w, "\n%s\n", cyan(fmt.Sprintf("Clue overlap (%s, %s)", cfg.BodyMetric, cfg.BodyThreshold.Kind)))
	for n := 1; n <= maxBag; n++ {
		t, err := policy.BodyThreshold(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %3d words  %.3f  (%d shared)\n", n, t, sharedNeeded(t, n))
	}
	return nil
}

// sharedNeeded is the fewest shared words meeting overlap t for a bag of n.
func sharedNeeded(t float64, n int) int {
	for k := 0; k <= n; k++ {
		if similarity.Meets(float64(k)/float64(n), t) {
			return k
		}
	}
	return n
}

func printNormalized(w io.Writer, cfg deduplication.Config, args []string) error {
	stem, err := normalize.StemmerByName(cfg.Stemming)
	if err != nil {
		return err
	}
	norm, err := normalize.New(normalize.Options{MaxKeyLength: cfg.MaxKeyLength, Stemmer: stem})
	if err != nil {
		return err
	}
	gray := color.New(color.FgHiBlack).SprintFunc()

	var recs []normalize.Normalized
	for i := 0; i+1 < len(args); i += 2 {
		rec := norm.Record(i/2, args[i], args[i+1])
		recs = append(recs, rec)
		fmt.Fprintf(w, "Record %d\n", rec.ID)
		fmt.Fprintf(w, "  answer: %q %s\n", rec.Key, gray(fmt.Sprintf("(%d chars)", utf8.RuneCountInString(rec.Key))))
		fmt.Fprintf(w, "  clue:   [%s] %s\n", strings.Join(rec.Bag, " "), gray(fmt.Sprintf("(%d words)", len(rec.Bag))))
	}
	if len(recs) < 2 {
		return nil
	}
	fmt.Fprintln(w)
	return printComparison(w, cfg, recs[0], recs[1])
}

func printComparison(w io.Writer, cfg deduplication.Config, a, b normalize.Normalized) error {
	policy, err := threshold.NewPolicy(cfg.KeyThresholds, cfg.BodyThreshold)
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	verdict := func(ok bool) string {
		if ok {
			return green("match")
		}
		return red("no match")
	}

	if a.DegenerateKey() != b.DegenerateKey() {
		fmt.Fprintf(w, "answer: %s (an empty answer only matches another empty answer)\n", verdict(false))
		return nil
	}
	// Whichever record sorts first is the pivot; its lengths pick the thresholds
	pivot := *blocking.Build([]normalize.Normalized{a, b}, cfg.SortAscending).Entry(0)
	// two empty answers share the exact block
	keyT := 1.0
	if !pivot.DegenerateKey() {
		if keyT, err = policy.KeyThreshold(utf8.RuneCountInString(pivot.Key)); err != nil {
			return err
		}
	}
	keySim := similarity.KeySimilarity(a.Key, b.Key, cfg.KeyMetric)
	keyOK := similarity.Meets(keySim, keyT)
	fmt.Fprintf(w, "answer: %.3f (need %.3f) %s\n", keySim, keyT, verdict(keyOK))
	if !keyOK {
		return nil
	}

	bodyT := 1.0
	if len(pivot.Bag) > 0 {
		if bodyT, err = policy.BodyThreshold(len(pivot.Bag)); err != nil {
			return err
		}
	}
	var bodySim float64
	if cfg.BodyMetric == similarity.Jaccard {
		bodySim = similarity.BodyJaccard(a.Bag, b.Bag)
	} else {
		bodySim = similarity.BodyOverlap(a.Bag, b.Bag)
	}
	bodyOK := similarity.Meets(bodySim, bodyT)
	fmt.Fprintf(w, "clue:   %.3f (need %.3f) %s\n", bodySim, bodyT, verdict(bodyOK))
	if !bodyOK {
		return nil
	}

	switch {
	case len(a.Bag) > len(b.Bag):
		fmt.Fprintf(w, "record 0 survives; record 1 has the smaller clue\n")
	case len(b.Bag) > len(a.Bag):
		fmt.Fprintf(w, "record 1 survives; record 0 has the smaller clue\n")
	case cfg.TieBreak == deduplication.TieKeepPivot:
		fmt.Fprintf(w, "equal clues; record %d survives as the pivot\n", pivot.ID)
	default:
		fmt.Fprintf(w, "equal clues; both survive\n")
	}
	return nil
}

func init() {
	thresholdsCmd.Flags().Int("max-len", 25, "Show answer thresholds up to this length")
	thresholdsCmd.Flags().Int("max-words", 12, "Show clue thresholds up to this word count")
	addConfigFlags(thresholdsCmd)
	addConfigFlags(normalizeCmd)
	rootCmd.AddCommand(thresholdsCmd)
	rootCmd.AddCommand(normalizeCmd)
}
