package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/extract"
	"promptsupport/internal/media"
	"promptsupport/internal/pipeline"
)

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	var mediaFiles []string

	cmd := &cobra.Command{
		Use:   "process <file|url>",
		Short: "Decompose a document into support articles",
		Long: `Process a document through the full decomposition pipeline:
analysis, planning, fact extraction, generation, validation, cross-article
QA, length adjustment and versioning. The run is held for review; nothing
is published until a reviewer approves it.

Supported inputs: markdown, plain text, and HTML, from local files or http(s) URLs.

Examples:
  # Process a markdown manual
  promptsupport process ./manual.md

  # Process an HTML page
  promptsupport process https://docs.example.com/manual

  # Attach media assets referenced by the articles
  promptsupport process ./manual.md --media diagram.png --media setup.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), args[0], mediaFiles)
		},
	}

	cmd.Flags().StringArrayVar(&mediaFiles, "media", nil, "Media file to store and reference from the articles (repeatable)")

	return cmd
}

func runProcess(ctx context.Context, path string, mediaFiles []string) error {
	doc, err := loadDocument(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("📄 Extracted %d blocks (%d words) from %s\n", len(doc.Blocks), doc.WordCount, path)

	st, p, _, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	refs, err := storeMedia(ctx, doc.DocID, mediaFiles)
	if err != nil {
		return err
	}

	res, err := p.Process(ctx, doc, pipeline.ProcessOptions{Media: refs})
	if err != nil {
		return err
	}

	if res.Reused {
		fmt.Printf("♻️  Content unchanged since version %d; reusing run %s\n", res.Version.Version, res.Run.RunID)
		return nil
	}

	fmt.Printf("\n✓ Run %s complete (version %d)\n", res.Run.RunID, res.Version.Version)
	fmt.Printf("  Status:   %s\n", res.Run.Status)
	fmt.Printf("  Articles: %d\n", len(res.Articles))
	for _, a := range res.Articles {
		fmt.Printf("    %s  %s (%d words)\n", a.ID, a.Title, a.WordCount())
	}
	if res.Validation != nil {
		fmt.Printf("  Fidelity: %.2f  Coverage: %.0f%%  Style: %.0f%%  Placeholders: %d\n",
			res.Validation.FidelityScore, res.Validation.CoveragePercent,
			res.Validation.StyleCompliancePercent, len(res.Validation.Placeholders))
	}
	fmt.Printf("\n💡 Review with: promptsupport review %s\n", res.Run.RunID)
	return nil
}

// loadDocument reads the input from disk or over HTTP and extracts its
// block sequence.
func loadDocument(ctx context.Context, path string) (*core.NormalizedDocument, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", path, err)
		}

		u, err := url.Parse(path)
		if err != nil {
			return nil, err
		}
		docID := strings.Trim(strings.ReplaceAll(u.Host+u.Path, "/", "-"), "-")
		return extract.FromHTML(docID, data)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := extract.FromFile(path, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return doc, nil
}

// storeMedia uploads the given files and returns their refs. Uses the
// configured object store, or the in-memory store when none is configured.
func storeMedia(ctx context.Context, docID string, paths []string) ([]core.MediaRef, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	var ms media.Store
	if cfg := config.Get().Media; cfg.Endpoint != "" {
		s3, err := media.NewS3Store(cfg)
		if err != nil {
			return nil, fmt.Errorf("media store: %w", err)
		}
		ms = s3
	} else {
		fmt.Fprintln(os.Stderr, "⚠️  No media store configured; refs will not survive this process")
		ms = media.NewMemStore()
	}

	refs := make([]core.MediaRef, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read media %s: %w", p, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(p))
		ref, err := ms.Put(ctx, docID, filepath.Base(p), contentType, data)
		if err != nil {
			return nil, fmt.Errorf("store media %s: %w", p, err)
		}
		fmt.Printf("🖼  Stored %s as %s\n", p, ref.ID)
		refs = append(refs, ref)
	}
	return refs, nil
}
