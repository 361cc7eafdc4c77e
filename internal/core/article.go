package core

import (
	"strings"
	"time"
)

// ArticleStatus tracks an article through validation and publishing.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusPassed    ArticleStatus = "passed"
	StatusPartial   ArticleStatus = "partial"
	StatusPublished ArticleStatus = "published"
)

// TOCEntry is one entry of an article's mini table of contents.
type TOCEntry struct {
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

// FAQ is one question/answer pair in an article's FAQ block.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// RelatedLink points at another article (or a section of one) in the same
// set. Target is "article_id" or "article_id#anchor".
type RelatedLink struct {
	Title  string `json:"title"`
	Target string `json:"target"`
}

// MediaRef is a reference to an asset stored elsewhere. Articles never embed
// media bytes; assets and articles have independent lifecycles.
type MediaRef struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// ArticleMetadata carries the full provenance chain of an article: which
// artifacts of which run produced it, and which source blocks each section
// is grounded on.
type ArticleMetadata struct {
	RunID           string              `json:"run_id"`
	AnalysisID      string              `json:"analysis_id"`
	OutlineID       string              `json:"outline_id"`
	PrewriteID      string              `json:"prewrite_id"`
	SectionBlockIDs map[string][]string `json:"section_block_ids"` // Section anchor → source block IDs
	Generator       string              `json:"generator"`         // Provider name that wrote the body
}

// SourceBlockIDs returns the union of block IDs across all sections.
func (m *ArticleMetadata) SourceBlockIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, blocks := range m.SectionBlockIDs {
		for _, id := range blocks {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Article is the stage-5 output for one planned article. The body is only
// rewritten by an explicit re-run; stages 6-8 touch status and diagnostic
// fields only.
type Article struct {
	ID           string          `json:"article_id"`
	RunID        string          `json:"run_id"`
	Title        string          `json:"title"`
	Intro        string          `json:"intro"`
	Markdown     string          `json:"markdown"`
	HTML         string          `json:"html"`
	TOC          []TOCEntry      `json:"toc"`
	FAQ          []FAQ           `json:"faq"`
	RelatedLinks []RelatedLink   `json:"related_links"`
	Media        []MediaRef      `json:"media,omitempty"`
	Status       ArticleStatus   `json:"status"`
	Metadata     ArticleMetadata `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WordCount counts whitespace-separated words in the markdown body.
func (a *Article) WordCount() int {
	return len(strings.Fields(a.Markdown))
}

// Anchor converts a heading into the anchor form used in TOC entries and
// related-link targets.
func Anchor(heading string) string {
	s := strings.ToLower(strings.TrimSpace(heading))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
