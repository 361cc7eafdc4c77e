package core

import "time"

// PlaceholderHit records one incomplete-content marker found by the
// validator's placeholder sweep.
type PlaceholderHit struct {
	ArticleID string `json:"article_id"`
	Pattern   string `json:"pattern"`
	Context   string `json:"context"` // Surrounding text, trimmed
}

// ValidationResult is the stage-6 quality report for a run revision.
// Immutable once written; a re-run produces a new one.
type ValidationResult struct {
	ID                     string           `json:"id"`
	RunID                  string           `json:"run_id"`
	FidelityScore          float64          `json:"fidelity_score"`          // [0,1], threshold 0.9
	CoveragePercent        float64          `json:"coverage_percent"`        // Mechanical figure, authoritative
	OracleCoveragePercent  float64          `json:"oracle_coverage_percent"` // Oracle's figure, recorded for diagnostics
	Placeholders           []PlaceholderHit `json:"placeholders"`
	StyleCompliancePercent float64          `json:"style_compliance_percent"` // Threshold 80
	FidelityPassed         bool             `json:"fidelity_passed"`
	CoveragePassed         bool             `json:"coverage_passed"`
	PlaceholdersPassed     bool             `json:"placeholders_passed"`
	StylePassed            bool             `json:"style_passed"`
	Passed                 bool             `json:"passed"`
	CreatedAt              time.Time        `json:"created_at"`
}

// DuplicateContent flags two article sections whose similarity exceeds the
// QA threshold.
type DuplicateContent struct {
	ArticleA   string  `json:"article_a"`
	ArticleB   string  `json:"article_b"`
	SectionA   string  `json:"section_a"`
	SectionB   string  `json:"section_b"`
	Similarity float64 `json:"similarity"`
}

// InvalidLink is a related link whose target does not resolve against the
// article/section index of the run.
type InvalidLink struct {
	ArticleID string      `json:"article_id"`
	Link      RelatedLink `json:"link"`
	Reason    string      `json:"reason"`
}

// DuplicateFAQ flags near-identical questions appearing in two articles.
type DuplicateFAQ struct {
	ArticleA   string  `json:"article_a"`
	ArticleB   string  `json:"article_b"`
	Question   string  `json:"question"`
	Similarity float64 `json:"similarity"`
}

// TerminologyIssue is a non-canonical spelling of a known term.
type TerminologyIssue struct {
	ArticleID string `json:"article_id"`
	Found     string `json:"found"`
	Canonical string `json:"canonical"`
	Count     int    `json:"count"`
}

// ConsolidationAction records one automated QA fix attempt. Failures are
// surfaced per-action, never hidden behind a stage-level boolean.
type ConsolidationAction struct {
	Action  string `json:"action"` // drop_duplicate|repoint_link|merge_faq|normalize_term
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// QAResult is the stage-7 cross-article analysis for a run revision.
type QAResult struct {
	ID                string                `json:"id"`
	RunID             string                `json:"run_id"`
	Duplicates        []DuplicateContent    `json:"duplicates"`
	InvalidLinks      []InvalidLink         `json:"invalid_links"`
	DuplicateFAQs     []DuplicateFAQ        `json:"duplicate_faqs"`
	TerminologyIssues []TerminologyIssue    `json:"terminology_issues"`
	Actions           []ConsolidationAction `json:"consolidation_actions"`
	CreatedAt         time.Time             `json:"created_at"`
}

// LengthStats summarizes word counts across the article set.
type LengthStats struct {
	Articles   int     `json:"articles"`
	TotalWords int     `json:"total_words"`
	MinWords   int     `json:"min_words"`
	MaxWords   int     `json:"max_words"`
	MeanWords  float64 `json:"mean_words"`
}

// MergeSuggestion proposes combining undersized articles.
type MergeSuggestion struct {
	ArticleIDs []string `json:"article_ids"`
	Reason     string   `json:"reason"`
}

// SplitSuggestion proposes splitting an oversized section out of an article.
type SplitSuggestion struct {
	ArticleID string `json:"article_id"`
	Section   string `json:"section"`
	Reason    string `json:"reason"`
}

// AdjustmentAction records one applied (or attempted) rebalancing action.
type AdjustmentAction struct {
	Action  string `json:"action"` // merge|split
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// AdjustmentResult is the stage-8 length-rebalancing report.
type AdjustmentResult struct {
	ID               string             `json:"id"`
	RunID            string             `json:"run_id"`
	Stats            LengthStats        `json:"stats"`
	MergeSuggestions []MergeSuggestion  `json:"merge_suggestions"`
	SplitSuggestions []SplitSuggestion  `json:"split_suggestions"`
	ReadabilityScore float64            `json:"readability_score"` // [0,1], distance from optimal length band
	ActionsApplied   []AdjustmentAction `json:"actions_applied"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ReviewStatus is the human-review gate state of a run.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewPublished ReviewStatus = "published"
)

// RunStatus is the pipeline outcome of a run revision.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed" // Fatal input error only; no partial artifacts exist
)

// RunRecord is the aggregate root for one end-to-end pipeline execution.
// It is the unit of idempotence, retry, and human review. Artifacts attach
// to it by run_id + revision; every artifact type is append-only per run.
type RunRecord struct {
	RunID        string       `json:"run_id"`
	DocID        string       `json:"doc_id"`
	Version      int          `json:"version"`
	SourceHash   string       `json:"source_hash"`
	Revision     int          `json:"revision"` // Incremented by reviewer-requested re-runs
	Status       RunStatus    `json:"status"`
	ReviewStatus ReviewStatus `json:"review_status"`
	RejectReason string       `json:"reject_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ArticleDiff compares one article pairing across two versions.
type ArticleDiff struct {
	ArticleID    string   `json:"article_id"`
	PairedWith   string   `json:"paired_with,omitempty"` // Prior-version article ID
	TitleChanged bool     `json:"title_changed"`
	TOCChanges   []string `json:"toc_changes,omitempty"`
	FAQChanges   []string `json:"faq_changes,omitempty"`
	LinkChanges  []string `json:"link_changes,omitempty"`
	Similarity   float64  `json:"similarity"` // Set-overlap of structural elements
}

// VersionDiff summarizes the change between two versions of a document.
type VersionDiff struct {
	PriorVersion int           `json:"prior_version"`
	Pairs        []ArticleDiff `json:"pairs"`
	Added        []string      `json:"added,omitempty"`   // Article IDs with no prior pairing
	Removed      []string      `json:"removed,omitempty"` // Prior article IDs with no current pairing
}

// VersionRecord is created once per distinct source hash of a document and
// never mutated.
type VersionRecord struct {
	DocID      string       `json:"doc_id"`
	Version    int          `json:"version"`
	SourceHash string       `json:"source_hash"`
	RunID      string       `json:"run_id"`
	Supersedes string       `json:"supersedes,omitempty"` // Prior run_id, empty for version 1
	Diff       *VersionDiff `json:"diff,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// MetricsBundle collects the stage 6-8 diagnostics that accompany a
// published article set.
type MetricsBundle struct {
	Validation ValidationResult `json:"validation"`
	QA         QAResult         `json:"qa"`
	Adjustment AdjustmentResult `json:"adjustment"`
}

// PublishedArticle is the denormalized record stored as the system of
// record when a run is approved and published.
type PublishedArticle struct {
	ArticleID    string              `json:"article_id"`
	RunID        string              `json:"run_id"`
	DocID        string              `json:"doc_id"`
	Version      int                 `json:"version"`
	Title        string              `json:"title"`
	Markdown     string              `json:"markdown"`
	HTML         string              `json:"html"`
	TOC          []TOCEntry          `json:"toc"`
	FAQ          []FAQ               `json:"faq"`
	RelatedLinks []RelatedLink       `json:"related_links"`
	Provenance   map[string][]string `json:"provenance"` // Section anchor → source block IDs
	Metrics      MetricsBundle       `json:"metrics"`
	PublishedAt  time.Time           `json:"published_at"`
}
