package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"promptsupport/internal/config"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptsupport",
		Short: "promptsupport decomposes long documents into reviewed support articles.",
		Long: `promptsupport ingests a long document, splits it into a set of
self-contained support articles, runs quality gates over the result, and
holds everything for human review before publishing.

Start with 'promptsupport process <file>' and review the outcome with
'promptsupport review' or the HTTP API ('promptsupport serve').`,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./promptsupport.yaml)")

	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewRunsCmd())
	rootCmd.AddCommand(NewReviewCmd())
	rootCmd.AddCommand(NewVersionsCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTUICmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}
