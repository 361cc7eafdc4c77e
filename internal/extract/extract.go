// Package extract turns raw source documents into normalized block lists.
// Extraction is deterministic: the same input bytes always yield the same
// block IDs, which is what makes reprocessing and version dedup work.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"promptsupport/internal/core"
)

// FromFile dispatches on the file extension. HTML gets the DOM extractor,
// everything else is treated as markdown/plain text.
func FromFile(path string, data []byte) (*core.NormalizedDocument, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FromHTML(docIDFromPath(path), data)
	default:
		return FromText(docIDFromPath(path), data)
	}
}

func docIDFromPath(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return slugify(base)
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "doc"
	}
	return out
}

// blockID returns the stable ID for the nth block of a document.
func blockID(n int) string {
	return fmt.Sprintf("b-%04d", n)
}

func countWords(blocks []core.ContentBlock) int {
	total := 0
	for _, b := range blocks {
		total += len(strings.Fields(b.Content))
	}
	return total
}
