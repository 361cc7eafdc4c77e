package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"promptsupport/internal/core"
	"promptsupport/internal/review"
)

// NewRunsCmd creates the runs command group
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Long: `List recent pipeline runs with their outcome and review state.

Examples:
  # List last 10 runs
  promptsupport runs list

  # List last 50 runs
  promptsupport runs list --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of runs to list")

	return cmd
}

func runRunsList(limit int) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet. Start with: promptsupport process <file>")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-7s  %-7s  %-9s  %s\n", "Run", "Document", "Version", "Status", "Review", "Created")
	for _, run := range runs {
		fmt.Printf("%-36s  %-20s  v%-6d  %-7s  %-9s  %s\n",
			run.RunID, truncate(run.DocID, 20), run.Version, run.Status, run.ReviewStatus,
			run.CreatedAt.Format("Jan 02 15:04"))
	}
	return nil
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its quality metrics and articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(args[0])
		},
	}
	return cmd
}

func runRunsShow(runID string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	fmt.Printf("Run:      %s\n", run.RunID)
	fmt.Printf("Document: %s (version %d, revision %d)\n", run.DocID, run.Version, run.Revision)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Review:   %s\n", run.ReviewStatus)
	if run.RejectReason != "" {
		fmt.Printf("Reason:   %s\n", run.RejectReason)
	}

	validation, err := st.GetValidation(runID, run.Revision)
	if err != nil {
		return err
	}
	if validation != nil {
		bundle := core.MetricsBundle{Validation: *validation}
		if qaRes, err := st.GetQAResult(runID, run.Revision); err == nil && qaRes != nil {
			bundle.QA = *qaRes
		}
		if adjustment, err := st.GetAdjustment(runID, run.Revision); err == nil && adjustment != nil {
			bundle.Adjustment = *adjustment
		}
		fmt.Printf("Badge:    %s\n", review.ScoreBadge(bundle))
		fmt.Printf("\nQuality gates:\n")
		fmt.Printf("  Fidelity:     %.2f (passed: %v)\n", validation.FidelityScore, validation.FidelityPassed)
		fmt.Printf("  Coverage:     %.0f%% (passed: %v)\n", validation.CoveragePercent, validation.CoveragePassed)
		fmt.Printf("  Placeholders: %d (passed: %v)\n", len(validation.Placeholders), validation.PlaceholdersPassed)
		fmt.Printf("  Style:        %.0f%% (passed: %v)\n", validation.StyleCompliancePercent, validation.StylePassed)
		for _, hit := range validation.Placeholders {
			fmt.Printf("    ⚠️  %s [%s]: %s\n", hit.ArticleID, hit.Pattern, hit.Context)
		}
	}

	articles, err := st.GetArticles(runID, run.Revision)
	if err != nil {
		return err
	}
	if len(articles) > 0 {
		fmt.Printf("\nArticles:\n")
		for _, a := range articles {
			fmt.Printf("  %s  %-40s  %5d words  %s\n", a.ID, truncate(a.Title, 40), a.WordCount(), a.Status)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
