package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fullcount-labs/athlete-cli/internal/identity"
)

var (
	dedupeThreshold float64
	dedupeMode      string
	dedupeIDs       []string
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and merge duplicate athletes",
	Long:  "Scores athlete pairs by name similarity. Mode review reports candidates, auto merges everything above the threshold, confirm asks per pair.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := identity.MergeMode(dedupeMode)
		switch mode {
		case identity.ModeReview, identity.ModeAuto, identity.ModeConfirm:
		default:
			return fmt.Errorf("unknown mode %q (want review, auto or confirm)", dedupeMode)
		}

		threshold := dedupeThreshold
		if threshold == 0 {
			threshold = cfg.Merge.SimilarityThreshold
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		merger := identity.NewMerger(st, threshold)
		if mode == identity.ModeConfirm {
			merger.Confirm = terminalConfirm(os.Stdin, os.Stdout)
		}

		report, err := merger.FindAndMerge(ctx, dedupeIDs, mode)
		if err != nil {
			return err
		}

		fmt.Printf("candidates=%d merged=%d skipped=%d failed=%d\n",
			report.Candidates, report.Merged, report.Skipped, report.Failed)
		return nil
	},
}

// terminalConfirm prompts y/n per candidate pair.
func terminalConfirm(in *os.File, out *os.File) func(context.Context, identity.CandidatePair) (bool, error) {
	scanner := bufio.NewScanner(in)
	return func(_ context.Context, pair identity.CandidatePair) (bool, error) {
		fmt.Fprintf(out, "Merge %q and %q (score %.2f)? [y/N] ",
			pair.A.DisplayName, pair.B.DisplayName, pair.Score)
		if !scanner.Scan() {
			return false, scanner.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}
}

func init() {
	dedupeCmd.Flags().Float64Var(&dedupeThreshold, "threshold", 0, "similarity threshold in (0,1] (default from config)")
	dedupeCmd.Flags().StringVar(&dedupeMode, "mode", "review", "review, auto or confirm")
	dedupeCmd.Flags().StringSliceVar(&dedupeIDs, "ids", nil, "restrict the scan to these athlete ids (default all)")
	rootCmd.AddCommand(dedupeCmd)
}
