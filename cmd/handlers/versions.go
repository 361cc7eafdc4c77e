package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionsCmd creates the versions command
func NewVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions <doc-id>",
		Short: "Show the version history of a document",
		Long: `List every recorded version of a document, newest last, with the
structural diff against the prior version.

Examples:
  promptsupport versions setup-guide`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(args[0])
		},
	}
	return cmd
}

func runVersions(docID string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	versions, err := st.ListVersions(docID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("no versions recorded for document %s", docID)
	}

	fmt.Printf("📚 %s: %d version(s)\n\n", docID, len(versions))
	for _, v := range versions {
		fmt.Printf("v%d  run %s  %s\n", v.Version, v.RunID, v.CreatedAt.Format("Jan 02, 2006 15:04"))
		if v.Supersedes != "" {
			fmt.Printf("    supersedes run %s\n", v.Supersedes)
		}
		if v.Diff == nil {
			continue
		}
		for _, id := range v.Diff.Added {
			fmt.Printf("    + article %s added\n", id)
		}
		for _, id := range v.Diff.Removed {
			fmt.Printf("    - article %s removed\n", id)
		}
		for _, pair := range v.Diff.Pairs {
			changes := len(pair.TOCChanges) + len(pair.FAQChanges) + len(pair.LinkChanges)
			if pair.TitleChanged {
				changes++
			}
			if changes == 0 {
				continue
			}
			fmt.Printf("    ~ %s (paired with %s, similarity %.2f): %d structural change(s)\n",
				pair.ArticleID, pair.PairedWith, pair.Similarity, changes)
			for _, c := range pair.TOCChanges {
				fmt.Printf("        toc  %s\n", c)
			}
			for _, c := range pair.FAQChanges {
				fmt.Printf("        faq  %s\n", c)
			}
			for _, c := range pair.LinkChanges {
				fmt.Printf("        link %s\n", c)
			}
		}
	}
	return nil
}
