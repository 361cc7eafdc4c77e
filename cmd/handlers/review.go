package handlers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"promptsupport/internal/pipeline"
)

// NewReviewCmd creates the review command
func NewReviewCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		rerun   bool
		reason  string
		stages  []string
	)

	cmd := &cobra.Command{
		Use:   "review <run-id>",
		Short: "Record a reviewer decision for a run",
		Long: `Approve, reject, or rerun a pipeline run.

Approving publishes the run's articles; publishing refuses runs that did
not pass validation. Rejecting requires a reason. Rerunning re-executes
the pipeline stages and resets the review gate.

Examples:
  # Approve and publish
  promptsupport review <run-id> --approve

  # Reject with a reason
  promptsupport review <run-id> --reject --reason "tone is off in a-02"

  # Re-run the pipeline stages
  promptsupport review <run-id> --rerun

  # Re-run only cross-article QA and adjustment
  promptsupport review <run-id> --rerun --stages qa,adjust`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, args[0], approve, reject, rerun, reason, stages)
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the run and publish its articles")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the run")
	cmd.Flags().BoolVar(&rerun, "rerun", false, "Re-execute the pipeline stages")
	cmd.Flags().StringVar(&reason, "reason", "", "Rejection reason (required with --reject)")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "Stages to re-execute with --rerun (analyze, outline, draft, validate, qa, adjust); empty means all")

	return cmd
}

func runReview(cmd *cobra.Command, runID string, approve, reject, rerun bool, reason string, stages []string) error {
	decisions := 0
	for _, set := range []bool{approve, reject, rerun} {
		if set {
			decisions++
		}
	}
	if decisions != 1 {
		return fmt.Errorf("exactly one of --approve, --reject, --rerun is required")
	}
	if len(stages) > 0 && !rerun {
		return fmt.Errorf("--stages only applies with --rerun")
	}
	stages, err := pipeline.ParseStages(stages)
	if err != nil {
		return err
	}

	st, _, reviews, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case approve:
		if err := reviews.Approve(runID); err != nil {
			return err
		}
		fmt.Printf("✓ Run %s approved and published\n", runID)
	case reject:
		if err := reviews.Reject(runID, reason); err != nil {
			return err
		}
		fmt.Printf("✓ Run %s rejected: %s\n", runID, reason)
	case rerun:
		if err := reviews.Rerun(cmd.Context(), runID, stages); err != nil {
			return err
		}
		if len(stages) > 0 {
			fmt.Printf("✓ Run %s re-executed stages %s; review gate reset to pending\n", runID, strings.Join(stages, ", "))
		} else {
			fmt.Printf("✓ Run %s re-executed; review gate reset to pending\n", runID)
		}
	}
	return nil
}
