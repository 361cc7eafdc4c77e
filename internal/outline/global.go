// Package outline implements stages 2 and 3: partitioning a document into
// article plans and structuring each article into sections. Oracle proposals
// are never trusted as-is; a mechanical reconciliation pass enforces the
// coverage invariant (every block in exactly one article or the discard
// bucket) after every proposal, whatever its source.
package outline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
)

const globalStage = "global_outline"

// Planner produces global and per-article outlines. A nil chain skips
// straight to the deterministic planners.
type Planner struct {
	chain *oracle.Chain
}

func NewPlanner(chain *oracle.Chain) *Planner {
	return &Planner{chain: chain}
}

type oracleArticlePlan struct {
	ProposedTitle string   `json:"proposed_title"`
	ScopeSummary  string   `json:"scope_summary"`
	BlockIDs      []string `json:"block_ids"`
}

type oracleGlobalOutline struct {
	Articles  []oracleArticlePlan `json:"articles"`
	Discarded []struct {
		BlockID string `json:"block_id"`
		Reason  string `json:"reason"`
	} `json:"discarded_blocks"`
}

// PlanGlobal produces the stage-2 partition of the document.
func (p *Planner) PlanGlobal(ctx context.Context, runID string, doc *core.NormalizedDocument, analysis *core.AnalysisResult) (*core.GlobalOutline, error) {
	min, max := analysis.Granularity.ArticleRange()

	outline := &core.GlobalOutline{
		ID:        uuid.NewString(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}

	if p.chain != nil {
		var resp oracleGlobalOutline
		provider, err := p.chain.Complete(ctx, oracle.Request{
			Stage:  globalStage,
			System: globalSystemPrompt(analysis, min, max),
			User:   blockListing(doc),
			Schema: globalSchema(),
		}, &resp)
		if err == nil && len(resp.Articles) > 0 {
			outline.Source = "oracle"
			for _, a := range resp.Articles {
				outline.Articles = append(outline.Articles, core.ArticlePlan{
					ProposedTitle: a.ProposedTitle,
					ScopeSummary:  a.ScopeSummary,
					BlockIDs:      a.BlockIDs,
				})
			}
			for _, d := range resp.Discarded {
				outline.Discarded = append(outline.Discarded, core.DiscardedBlock{
					BlockID: d.BlockID,
					Reason:  core.DiscardReason(d.Reason),
				})
			}
			Reconcile(doc, outline)
			if n := len(outline.Articles); n < min || (max > 0 && n > max) {
				logger.Warn("planner article count outside granularity band", "run_id", runID, "count", n, "min", min, "max", max)
			}
			logger.Info("global outline planned", "run_id", runID, "provider", provider, "articles", len(outline.Articles), "discarded", len(outline.Discarded))
			return outline, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("global outline oracle failed, using heading split", "run_id", runID)
	}

	fb := FallbackGlobal(doc, analysis.Granularity)
	fb.ID = outline.ID
	fb.RunID = runID
	fb.CreatedAt = outline.CreatedAt
	logger.Info("global outline planned", "run_id", runID, "provider", "heuristic", "articles", len(fb.Articles))
	return fb, nil
}

// Reconcile mechanically enforces the coverage invariant on an outline,
// mutating it in place:
//
//   - unknown block IDs are dropped,
//   - a block claimed twice stays with its first claimant,
//   - an invalid discard reason voids the discard,
//   - an unclaimed block joins the article of the nearest preceding
//     assigned block (the first article if none precedes it),
//   - empty article plans are removed and article IDs renumbered.
//
// After Reconcile every document block is in exactly one article or
// discarded with a valid reason.
func Reconcile(doc *core.NormalizedDocument, o *core.GlobalOutline) {
	known := make(map[string]bool, len(doc.Blocks))
	for _, b := range doc.Blocks {
		known[b.ID] = true
	}

	// Provisional IDs so the sweep can attribute blocks to proposals that
	// arrived without IDs. Final numbering happens after empty plans drop.
	for i := range o.Articles {
		o.Articles[i].ArticleID = fmt.Sprintf("a-%02d", i+1)
	}

	claimed := make(map[string]bool, len(doc.Blocks))
	for i := range o.Articles {
		kept := o.Articles[i].BlockIDs[:0]
		for _, id := range o.Articles[i].BlockIDs {
			if !known[id] || claimed[id] {
				continue
			}
			claimed[id] = true
			kept = append(kept, id)
		}
		o.Articles[i].BlockIDs = kept
	}

	keptDiscards := o.Discarded[:0]
	for _, d := range o.Discarded {
		if !known[d.BlockID] || claimed[d.BlockID] || !d.Reason.Valid() {
			continue
		}
		claimed[d.BlockID] = true
		keptDiscards = append(keptDiscards, d)
	}
	o.Discarded = keptDiscards

	// Sweep in document order so "nearest preceding" is well defined.
	if len(o.Articles) == 0 {
		o.Articles = append(o.Articles, core.ArticlePlan{ProposedTitle: doc.Title})
	}
	assign := o.Assignments()
	lastArticle := o.Articles[0].ArticleID
	byID := make(map[string]*core.ArticlePlan, len(o.Articles))
	for i := range o.Articles {
		byID[o.Articles[i].ArticleID] = &o.Articles[i]
	}
	for _, b := range doc.Blocks {
		if a, ok := assign[b.ID]; ok {
			lastArticle = a
			continue
		}
		if claimed[b.ID] {
			continue // discarded
		}
		plan := byID[lastArticle]
		plan.BlockIDs = append(plan.BlockIDs, b.ID)
		claimed[b.ID] = true
	}

	keptArticles := o.Articles[:0]
	for _, a := range o.Articles {
		if len(a.BlockIDs) > 0 {
			keptArticles = append(keptArticles, a)
		}
	}
	o.Articles = keptArticles
	for i := range o.Articles {
		o.Articles[i].ArticleID = fmt.Sprintf("a-%02d", i+1)
		if o.Articles[i].ProposedTitle == "" {
			o.Articles[i].ProposedTitle = fmt.Sprintf("Part %d", i+1)
		}
	}
}

// FallbackGlobal is the deterministic heading-split planner. It partitions
// the document into contiguous heading-aligned segments and merges or splits
// them until the article count fits the granularity band.
func FallbackGlobal(doc *core.NormalizedDocument, g core.Granularity) *core.GlobalOutline {
	min, max := g.ArticleRange()
	segs := headingSegments(doc)

	target := len(segs)
	if target < min {
		target = min
	}
	if max > 0 && target > max {
		target = max
	}

	for len(segs) > target {
		segs = mergeSmallestAdjacent(segs)
	}
	for len(segs) < target {
		next, ok := splitLargest(segs)
		if !ok {
			break // fewer blocks than the band wants; accept the shortfall
		}
		segs = next
	}

	o := &core.GlobalOutline{
		ID:        uuid.NewString(),
		RunID:     "",
		Source:    "heuristic",
		CreatedAt: time.Now().UTC(),
	}
	for i, s := range segs {
		title := s.title
		if title == "" {
			title = fmt.Sprintf("Part %d", i+1)
		}
		o.Articles = append(o.Articles, core.ArticlePlan{
			ArticleID:     fmt.Sprintf("a-%02d", i+1),
			ProposedTitle: title,
			ScopeSummary:  fmt.Sprintf("Blocks %s through %s", s.blockIDs[0], s.blockIDs[len(s.blockIDs)-1]),
			BlockIDs:      s.blockIDs,
		})
	}
	return o
}

type segment struct {
	title    string
	blockIDs []string
	words    int
}

// headingSegments cuts the block list at each heading of the shallowest
// level that occurs more than once. A lone document-title heading is not a
// useful cut point. Content before the first cut becomes a leading segment.
func headingSegments(doc *core.NormalizedDocument) []segment {
	counts := [8]int{}
	for _, b := range doc.Blocks {
		if b.Type == core.BlockHeading && b.Level >= 1 && b.Level <= 6 {
			counts[b.Level]++
		}
	}
	cutLevel := 7
	for l := 1; l <= 6; l++ {
		if counts[l] >= 2 {
			cutLevel = l
			break
		}
	}
	if cutLevel == 7 {
		for l := 1; l <= 6; l++ {
			if counts[l] > 0 {
				cutLevel = l
				break
			}
		}
	}

	var segs []segment
	cur := segment{}
	flush := func() {
		if len(cur.blockIDs) > 0 {
			segs = append(segs, cur)
		}
		cur = segment{}
	}
	for _, b := range doc.Blocks {
		if b.Type == core.BlockHeading && b.Level == cutLevel {
			// A single top-level title heading should not isolate the
			// preamble into its own article.
			if len(segs) == 0 && cur.title == "" && len(cur.blockIDs) <= 1 {
				cur.title = b.Content
				cur.blockIDs = append(cur.blockIDs, b.ID)
				continue
			}
			flush()
			cur.title = b.Content
		}
		cur.blockIDs = append(cur.blockIDs, b.ID)
		cur.words += len(strings.Fields(b.Content))
	}
	flush()

	if len(segs) == 0 && len(doc.Blocks) > 0 {
		all := segment{title: doc.Title}
		for _, b := range doc.Blocks {
			all.blockIDs = append(all.blockIDs, b.ID)
			all.words += len(strings.Fields(b.Content))
		}
		segs = []segment{all}
	}
	return segs
}

func mergeSmallestAdjacent(segs []segment) []segment {
	if len(segs) < 2 {
		return segs
	}
	best, bestWords := 0, segs[0].words+segs[1].words
	for i := 1; i < len(segs)-1; i++ {
		if w := segs[i].words + segs[i+1].words; w < bestWords {
			best, bestWords = i, w
		}
	}
	merged := segs[best]
	merged.blockIDs = append(append([]string(nil), merged.blockIDs...), segs[best+1].blockIDs...)
	merged.words += segs[best+1].words
	if merged.title == "" {
		merged.title = segs[best+1].title
	}
	out := append([]segment(nil), segs[:best]...)
	out = append(out, merged)
	out = append(out, segs[best+2:]...)
	return out
}

func splitLargest(segs []segment) ([]segment, bool) {
	best, bestLen := -1, 1
	for i, s := range segs {
		if len(s.blockIDs) > bestLen {
			best, bestLen = i, len(s.blockIDs)
		}
	}
	if best < 0 {
		return segs, false
	}
	s := segs[best]
	mid := len(s.blockIDs) / 2
	left := segment{title: s.title, blockIDs: append([]string(nil), s.blockIDs[:mid]...)}
	right := segment{title: s.title + " (continued)", blockIDs: append([]string(nil), s.blockIDs[mid:]...)}
	out := append([]segment(nil), segs[:best]...)
	out = append(out, left, right)
	out = append(out, segs[best+1:]...)
	return out, true
}

func blockListing(doc *core.NormalizedDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n\nBlocks:\n", doc.Title)
	for _, blk := range doc.Blocks {
		excerpt := blk.Content
		if len(excerpt) > 160 {
			excerpt = excerpt[:160] + "..."
		}
		if blk.Type == core.BlockHeading {
			fmt.Fprintf(&b, "%s h%d: %s\n", blk.ID, blk.Level, excerpt)
		} else {
			fmt.Fprintf(&b, "%s %s: %s\n", blk.ID, blk.Type, excerpt)
		}
	}
	return b.String()
}

func globalSystemPrompt(analysis *core.AnalysisResult, min, max int) string {
	band := fmt.Sprintf("between %d and %d articles", min, max)
	if max == 0 {
		band = fmt.Sprintf("at least %d articles", min)
	}
	if min == max {
		band = fmt.Sprintf("exactly %d article(s)", min)
	}
	return fmt.Sprintf(`You partition a source document into standalone help-center articles.
The document is %s content for %s. Propose %s.
Every block ID must appear in exactly one article's block_ids, or in
discarded_blocks with reason "duplicate", "boilerplate", or "junk".
Blocks keep their original order within an article. Respond with JSON:
{"articles":[{"proposed_title","scope_summary","block_ids"}],"discarded_blocks":[{"block_id","reason"}]}`,
		analysis.ContentType, analysis.Audience, band)
}

func globalSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"articles": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"proposed_title": {Type: genai.TypeString},
						"scope_summary":  {Type: genai.TypeString},
						"block_ids": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"proposed_title", "block_ids"},
				},
			},
			"discarded_blocks": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"block_id": {Type: genai.TypeString},
						"reason": {
							Type:        genai.TypeString,
							Description: "duplicate, boilerplate, or junk",
						},
					},
					Required: []string{"block_id", "reason"},
				},
			},
		},
		Required: []string{"articles"},
	}
}
