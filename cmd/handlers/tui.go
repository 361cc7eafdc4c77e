package handlers

import (
	"github.com/spf13/cobra"

	"promptsupport/internal/tui"
)

// NewTUICmd creates the tui command for the interactive review console
func NewTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive review console",
		Long: `Open a terminal UI listing recent runs with their quality badges.
Select a run with the arrow keys, approve with 'a', reject with 'r'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, reviews, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			tui.Start(st, reviews)
			return nil
		},
	}
	return cmd
}
