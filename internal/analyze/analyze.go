// Package analyze implements the first pipeline stage: classifying a
// normalized document and choosing a decomposition granularity. The oracle
// sees only a bounded structural preview, never the full document; when the
// whole provider chain fails, a rule-based classifier keeps the stage total.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
)

const stageName = "analysis"

// Analyzer classifies documents. A nil chain skips straight to the
// heuristic classifier.
type Analyzer struct {
	chain         *oracle.Chain
	previewBlocks int
	previewChars  int
}

func New(chain *oracle.Chain, cfg config.Pipeline) *Analyzer {
	a := &Analyzer{chain: chain, previewBlocks: cfg.PreviewBlocks, previewChars: cfg.PreviewChars}
	if a.previewBlocks <= 0 {
		a.previewBlocks = 40
	}
	if a.previewChars <= 0 {
		a.previewChars = 280
	}
	return a
}

type oracleAnalysis struct {
	ContentType   string   `json:"content_type"`
	Audience      string   `json:"audience"`
	FormatSignals []string `json:"format_signals"`
	Complexity    string   `json:"complexity"`
	Granularity   string   `json:"granularity"`
}

// Analyze produces the stage-1 classification for a run revision.
func (a *Analyzer) Analyze(ctx context.Context, runID string, doc *core.NormalizedDocument) (*core.AnalysisResult, error) {
	if len(doc.Blocks) == 0 {
		return nil, errors.New("document has no content blocks")
	}

	result := &core.AnalysisResult{
		ID:        uuid.NewString(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}

	if a.chain != nil {
		var resp oracleAnalysis
		provider, err := a.chain.Complete(ctx, oracle.Request{
			Stage:  stageName,
			System: analysisSystemPrompt,
			User:   a.Preview(doc),
			Schema: analysisSchema(),
		}, &resp)
		if err == nil {
			if g := core.Granularity(resp.Granularity); g.Valid() && resp.ContentType != "" {
				result.ContentType = resp.ContentType
				result.Audience = resp.Audience
				result.FormatSignals = resp.FormatSignals
				result.Complexity = normalizeComplexity(resp.Complexity)
				result.Granularity = g
				result.Source = "oracle"
				logger.Info("document analyzed", "run_id", runID, "provider", provider, "granularity", g)
				return result, nil
			}
			logger.Warn("analysis response out of range, using heuristic", "run_id", runID, "granularity", resp.Granularity)
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	h := Heuristic(doc)
	result.ContentType = h.ContentType
	result.Audience = h.Audience
	result.FormatSignals = h.FormatSignals
	result.Complexity = h.Complexity
	result.Granularity = h.Granularity
	result.Source = "heuristic"
	logger.Info("document analyzed", "run_id", runID, "provider", "heuristic", "granularity", result.Granularity)
	return result, nil
}

// Preview builds the bounded structural summary sent to the oracle. It is a
// block-type histogram, the heading outline, and a capped sample of block
// excerpts. Full documents never cross the oracle boundary.
func (a *Analyzer) Preview(doc *core.NormalizedDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\nWord count: %d\nBlocks: %d\n", doc.Title, doc.WordCount, len(doc.Blocks))

	hist := map[core.BlockType]int{}
	for _, blk := range doc.Blocks {
		hist[blk.Type]++
	}
	b.WriteString("Block types:")
	for _, t := range []core.BlockType{core.BlockHeading, core.BlockParagraph, core.BlockList, core.BlockTable, core.BlockCode, core.BlockQuote} {
		if hist[t] > 0 {
			fmt.Fprintf(&b, " %s=%d", t, hist[t])
		}
	}
	b.WriteString("\n\nHeadings:\n")
	for _, blk := range doc.Blocks {
		if blk.Type == core.BlockHeading {
			fmt.Fprintf(&b, "%s[%d] %s\n", strings.Repeat("  ", blk.Level-1), blk.Level, truncate(blk.Content, a.previewChars))
		}
	}

	b.WriteString("\nSample blocks:\n")
	step := 1
	if len(doc.Blocks) > a.previewBlocks {
		step = (len(doc.Blocks) + a.previewBlocks - 1) / a.previewBlocks
	}
	for i := 0; i < len(doc.Blocks); i += step {
		blk := doc.Blocks[i]
		fmt.Fprintf(&b, "%s (%s): %s\n", blk.ID, blk.Type, truncate(blk.Content, a.previewChars))
	}
	return b.String()
}

// Heuristic is the deterministic fallback classifier. It is total: any
// non-empty document gets a classification.
func Heuristic(doc *core.NormalizedDocument) *core.AnalysisResult {
	hist := map[core.BlockType]int{}
	maxLevel := 0
	for _, blk := range doc.Blocks {
		hist[blk.Type]++
		if blk.Type == core.BlockHeading && blk.Level > maxLevel {
			maxLevel = blk.Level
		}
	}
	total := len(doc.Blocks)

	var signals []string
	if hist[core.BlockCode]*5 >= total {
		signals = append(signals, "code-heavy")
	}
	if hist[core.BlockTable]*5 >= total {
		signals = append(signals, "table-heavy")
	}
	if hist[core.BlockList]*3 >= total {
		signals = append(signals, "list-heavy")
	}

	contentType := "guide"
	switch {
	case hist[core.BlockTable]*5 >= total:
		contentType = "reference"
	case hist[core.BlockCode]*5 >= total:
		contentType = "tutorial"
	}

	audience := "end-users"
	if hist[core.BlockCode] > 0 {
		audience = "developers"
	}

	complexity := "low"
	switch {
	case doc.WordCount > 5000 || maxLevel >= 4:
		complexity = "high"
	case doc.WordCount > 1500 || maxLevel >= 3:
		complexity = "medium"
	}

	granularity := core.GranularityUnified
	switch {
	case doc.WordCount >= 8000:
		granularity = core.GranularityDeep
	case doc.WordCount >= 3500:
		granularity = core.GranularityModerate
	case doc.WordCount >= 1200:
		granularity = core.GranularityShallow
	}

	return &core.AnalysisResult{
		ContentType:   contentType,
		Audience:      audience,
		FormatSignals: signals,
		Complexity:    complexity,
		Granularity:   granularity,
		Source:        "heuristic",
	}
}

func normalizeComplexity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "medium", "high":
		return strings.ToLower(strings.TrimSpace(s))
	}
	return "medium"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

const analysisSystemPrompt = `You classify support documentation for decomposition into help-center articles.
Given the structural preview of a document, respond with JSON:
content_type (e.g. tutorial, reference, guide, faq), audience (e.g. developers, end-users, admins),
format_signals (array of strings like code-heavy, table-heavy), complexity (low|medium|high),
granularity (unified|shallow|moderate|deep). Choose unified for one short cohesive topic,
shallow for a few distinct topics, moderate for a handbook-sized document, deep for a large manual.`

func analysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"content_type": {
				Type:        genai.TypeString,
				Description: "Document genre, e.g. tutorial, reference, guide, faq",
			},
			"audience": {
				Type:        genai.TypeString,
				Description: "Primary audience, e.g. developers, end-users, admins",
			},
			"format_signals": {
				Type:        genai.TypeArray,
				Description: "Structural traits such as code-heavy or table-heavy",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"complexity": {
				Type:        genai.TypeString,
				Description: "low, medium, or high",
			},
			"granularity": {
				Type:        genai.TypeString,
				Description: "unified, shallow, moderate, or deep",
			},
		},
		Required: []string{"content_type", "granularity"},
	}
}
