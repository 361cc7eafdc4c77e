package core

import "time"

// BlockType classifies a unit of source content.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockTable     BlockType = "table"
	BlockCode      BlockType = "code"
	BlockQuote     BlockType = "quote"
)

// Provenance points back to the location of a block in the source document.
type Provenance struct {
	Page  int `json:"page,omitempty"`  // Page number (PDF/DOCX sources)
	Slide int `json:"slide,omitempty"` // Slide number (PPTX sources)
	Line  int `json:"line,omitempty"`  // Line number (text/HTML sources)
}

// ContentBlock is an atomic unit of source content. Blocks are never mutated
// after extraction; every later stage references them by ID.
type ContentBlock struct {
	ID      string     `json:"block_id"`        // Stable, unique within a document
	Type    BlockType  `json:"type"`            // heading|paragraph|list|table|code|quote
	Content string     `json:"content"`         // Raw text content of the block
	Level   int        `json:"level,omitempty"` // Heading level (1-6), zero otherwise
	Source  Provenance `json:"source"`          // Where the block came from
}

// NormalizedDocument is the immutable input to the whole pipeline, produced
// by an extractor. Every block ID must be unique.
type NormalizedDocument struct {
	DocID     string         `json:"doc_id"`
	Title     string         `json:"title"`
	Language  string         `json:"language"`
	WordCount int            `json:"word_count"`
	PageCount int            `json:"page_count,omitempty"`
	Blocks    []ContentBlock `json:"blocks"`
}

// BlockIDs returns the IDs of all blocks in document order.
func (d *NormalizedDocument) BlockIDs() []string {
	ids := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		ids = append(ids, b.ID)
	}
	return ids
}

// BlockByID returns the block with the given ID, or nil if absent.
func (d *NormalizedDocument) BlockByID(id string) *ContentBlock {
	for i := range d.Blocks {
		if d.Blocks[i].ID == id {
			return &d.Blocks[i]
		}
	}
	return nil
}

// Granularity is the target article-count band for a document.
type Granularity string

const (
	GranularityUnified  Granularity = "unified"
	GranularityShallow  Granularity = "shallow"
	GranularityModerate Granularity = "moderate"
	GranularityDeep     Granularity = "deep"
)

// ArticleRange returns the target article-count range for the granularity.
// max == 0 means unbounded above.
func (g Granularity) ArticleRange() (min, max int) {
	switch g {
	case GranularityUnified:
		return 1, 1
	case GranularityShallow:
		return 3, 3
	case GranularityModerate:
		return 4, 6
	case GranularityDeep:
		return 7, 0
	default:
		return 1, 1
	}
}

// Valid reports whether g is a known granularity value.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityUnified, GranularityShallow, GranularityModerate, GranularityDeep:
		return true
	}
	return false
}

// AnalysisResult is the stage-1 classification of a document. Created once
// per run revision, read-only afterward.
type AnalysisResult struct {
	ID            string      `json:"id"`
	RunID         string      `json:"run_id"`
	ContentType   string      `json:"content_type"`   // e.g. "tutorial", "reference", "guide"
	Audience      string      `json:"audience"`       // e.g. "developers", "end-users"
	FormatSignals []string    `json:"format_signals"` // e.g. "code-heavy", "table-heavy"
	Complexity    string      `json:"complexity"`     // low|medium|high
	Granularity   Granularity `json:"granularity"`
	Source        string      `json:"source"` // "oracle" or "heuristic"
	CreatedAt     time.Time   `json:"created_at"`
}

// DiscardReason explains why a block was excluded from every article.
type DiscardReason string

const (
	DiscardDuplicate   DiscardReason = "duplicate"
	DiscardBoilerplate DiscardReason = "boilerplate"
	DiscardJunk        DiscardReason = "junk"
)

// Valid reports whether r is one of the allowed discard reasons.
func (r DiscardReason) Valid() bool {
	switch r {
	case DiscardDuplicate, DiscardBoilerplate, DiscardJunk:
		return true
	}
	return false
}

// ArticlePlan is one proposed article in a GlobalOutline.
type ArticlePlan struct {
	ArticleID     string   `json:"article_id"`
	ProposedTitle string   `json:"proposed_title"`
	ScopeSummary  string   `json:"scope_summary"`
	BlockIDs      []string `json:"block_ids"`
}

// DiscardedBlock is a block deliberately excluded from the article set.
type DiscardedBlock struct {
	BlockID string        `json:"block_id"`
	Reason  DiscardReason `json:"reason"`
}

// GlobalOutline partitions every source block into articles or the discard
// bucket. Invariant: the union of article block IDs and discarded block IDs
// equals the document's block set, with no duplicates.
type GlobalOutline struct {
	ID        string           `json:"id"`
	RunID     string           `json:"run_id"`
	Articles  []ArticlePlan    `json:"articles"`
	Discarded []DiscardedBlock `json:"discarded_blocks"`
	Source    string           `json:"source"` // "oracle" or "heuristic"
	CreatedAt time.Time        `json:"created_at"`
}

// Assignments returns a map from block ID to the article ID it belongs to.
// Discarded blocks are not included.
func (o *GlobalOutline) Assignments() map[string]string {
	m := make(map[string]string)
	for _, a := range o.Articles {
		for _, id := range a.BlockIDs {
			m[id] = a.ArticleID
		}
	}
	return m
}

// PlanFor returns the plan for the given article ID, or nil.
func (o *GlobalOutline) PlanFor(articleID string) *ArticlePlan {
	for i := range o.Articles {
		if o.Articles[i].ArticleID == articleID {
			return &o.Articles[i]
		}
	}
	return nil
}

// Subsection groups blocks under a sub-heading within a section.
type Subsection struct {
	Heading  string   `json:"heading"`
	BlockIDs []string `json:"block_ids"`
}

// Section is one top-level section of an article outline. Blocks may be
// assigned directly to the section or to one of its subsections.
type Section struct {
	Heading     string       `json:"heading"`
	BlockIDs    []string     `json:"block_ids"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// AllBlockIDs returns the section's direct and subsection block IDs.
func (s *Section) AllBlockIDs() []string {
	ids := append([]string(nil), s.BlockIDs...)
	for _, sub := range s.Subsections {
		ids = append(ids, sub.BlockIDs...)
	}
	return ids
}

// ArticleOutline organizes one article's assigned blocks into sections.
// Invariant: the union of section block IDs equals the article's assignment
// in the GlobalOutline.
type ArticleOutline struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	ArticleID      string    `json:"article_id"`
	Title          string    `json:"title"`
	Sections       []Section `json:"sections"`
	FAQSuggestions []string  `json:"faq_suggestions,omitempty"`
	RelatedLinks   []string  `json:"related_link_suggestions,omitempty"`
	Deviations     []string  `json:"deviations,omitempty"` // Soft-constraint violations, logged not enforced
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// BlockIDs returns the union of all section and subsection block IDs.
func (o *ArticleOutline) BlockIDs() []string {
	var ids []string
	for i := range o.Sections {
		ids = append(ids, o.Sections[i].AllBlockIDs()...)
	}
	return ids
}

// Fact is a single evidence-grounded statement extracted during prewrite.
type Fact struct {
	Text             string   `json:"text"`
	EvidenceBlockIDs []string `json:"evidence_block_ids"`
}

// Gap records information the source does not provide for a section.
type Gap struct {
	Need  string `json:"need"`
	Where string `json:"where"`
}

// PrewriteSection holds the extracted facts for one outline section.
type PrewriteSection struct {
	Heading             string   `json:"heading"`
	Facts               []Fact   `json:"facts"`
	MustIncludeExamples []string `json:"must_include_examples,omitempty"`
	Gaps                []Gap    `json:"gaps,omitempty"`
	Terms               []string `json:"terms,omitempty"`
}

// PrewriteData is the stage-4 fact base for one article. No prose is
// generated without facts existing here first.
type PrewriteData struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	ArticleID string            `json:"article_id"`
	Sections  []PrewriteSection `json:"sections"`
	Source    string            `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
}

// SectionFor returns the prewrite section matching the heading, or nil.
func (p *PrewriteData) SectionFor(heading string) *PrewriteSection {
	for i := range p.Sections {
		if p.Sections[i].Heading == heading {
			return &p.Sections[i]
		}
	}
	return nil
}
