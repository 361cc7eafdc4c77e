package outline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
)

const articleStage = "article_outline"

// Section-count band is a soft constraint: violations are recorded as
// deviations, never rejected.
const (
	softMinSections = 3
	softMaxSections = 7
)

type oracleArticleOutline struct {
	Title    string `json:"title"`
	Sections []struct {
		Heading     string   `json:"heading"`
		BlockIDs    []string `json:"block_ids"`
		Subsections []struct {
			Heading  string   `json:"heading"`
			BlockIDs []string `json:"block_ids"`
		} `json:"subsections"`
	} `json:"sections"`
	FAQSuggestions []string `json:"faq_suggestions"`
	RelatedLinks   []string `json:"related_link_suggestions"`
}

// PlanArticle produces the stage-3 section structure for one article plan.
// The outline's block set always equals the plan's assignment exactly.
func (p *Planner) PlanArticle(ctx context.Context, runID string, doc *core.NormalizedDocument, plan *core.ArticlePlan) (*core.ArticleOutline, error) {
	outline := &core.ArticleOutline{
		ID:        uuid.NewString(),
		RunID:     runID,
		ArticleID: plan.ArticleID,
		Title:     plan.ProposedTitle,
		CreatedAt: time.Now().UTC(),
	}

	if p.chain != nil {
		var resp oracleArticleOutline
		provider, err := p.chain.Complete(ctx, oracle.Request{
			Stage:  articleStage,
			System: articleSystemPrompt(plan),
			User:   scopedListing(doc, plan),
			Schema: articleSchema(),
		}, &resp)
		if err == nil && len(resp.Sections) > 0 {
			outline.Source = "oracle"
			if resp.Title != "" {
				outline.Title = resp.Title
			}
			for _, s := range resp.Sections {
				sec := core.Section{Heading: s.Heading, BlockIDs: s.BlockIDs}
				for _, sub := range s.Subsections {
					sec.Subsections = append(sec.Subsections, core.Subsection{Heading: sub.Heading, BlockIDs: sub.BlockIDs})
				}
				outline.Sections = append(outline.Sections, sec)
			}
			outline.FAQSuggestions = resp.FAQSuggestions
			outline.RelatedLinks = resp.RelatedLinks
			ReconcileArticle(doc, plan, outline)
			logger.Info("article outline planned", "run_id", runID, "article_id", plan.ArticleID, "provider", provider, "sections", len(outline.Sections))
			return outline, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("article outline oracle failed, using heading split", "run_id", runID, "article_id", plan.ArticleID)
	}

	fb := FallbackArticle(doc, plan)
	fb.ID = outline.ID
	fb.RunID = runID
	fb.CreatedAt = outline.CreatedAt
	logger.Info("article outline planned", "run_id", runID, "article_id", plan.ArticleID, "provider", "heuristic", "sections", len(fb.Sections))
	return fb, nil
}

// ReconcileArticle is the scoped twin of Reconcile: it forces the outline's
// block set to equal the plan's assignment. Foreign and duplicate IDs drop,
// unplaced plan blocks join the section holding the nearest preceding plan
// block, empty sections are removed, and the soft section-count band is
// checked into Deviations.
func ReconcileArticle(doc *core.NormalizedDocument, plan *core.ArticlePlan, o *core.ArticleOutline) {
	scope := make(map[string]bool, len(plan.BlockIDs))
	for _, id := range plan.BlockIDs {
		scope[id] = true
	}

	placed := map[string]int{} // block ID → section index
	for i := range o.Sections {
		keep := o.Sections[i].BlockIDs[:0]
		for _, id := range o.Sections[i].BlockIDs {
			if !scope[id] {
				continue
			}
			if _, dup := placed[id]; dup {
				continue
			}
			placed[id] = i
			keep = append(keep, id)
		}
		o.Sections[i].BlockIDs = keep
		for j := range o.Sections[i].Subsections {
			keep := o.Sections[i].Subsections[j].BlockIDs[:0]
			for _, id := range o.Sections[i].Subsections[j].BlockIDs {
				if !scope[id] {
					continue
				}
				if _, dup := placed[id]; dup {
					continue
				}
				placed[id] = i
				keep = append(keep, id)
			}
			o.Sections[i].Subsections[j].BlockIDs = keep
		}
	}

	if len(o.Sections) == 0 {
		o.Sections = []core.Section{{Heading: "Overview"}}
	}

	last := 0
	for _, id := range plan.BlockIDs {
		if idx, ok := placed[id]; ok {
			last = idx
			continue
		}
		o.Sections[last].BlockIDs = append(o.Sections[last].BlockIDs, id)
		placed[id] = last
	}

	kept := o.Sections[:0]
	for _, s := range o.Sections {
		subs := s.Subsections[:0]
		for _, sub := range s.Subsections {
			if len(sub.BlockIDs) > 0 {
				subs = append(subs, sub)
			}
		}
		s.Subsections = subs
		if len(s.AllBlockIDs()) > 0 {
			kept = append(kept, s)
		}
	}
	o.Sections = kept

	if n := len(o.Sections); n < softMinSections {
		o.Deviations = append(o.Deviations, fmt.Sprintf("only %d sections, below the %d-section target", n, softMinSections))
	} else if n > softMaxSections {
		o.Deviations = append(o.Deviations, fmt.Sprintf("%d sections, above the %d-section target", n, softMaxSections))
	}
}

// FallbackArticle builds a deterministic outline by cutting the article's
// blocks at its internal headings.
func FallbackArticle(doc *core.NormalizedDocument, plan *core.ArticlePlan) *core.ArticleOutline {
	o := &core.ArticleOutline{
		ID:        uuid.NewString(),
		ArticleID: plan.ArticleID,
		Title:     plan.ProposedTitle,
		Source:    "heuristic",
		CreatedAt: time.Now().UTC(),
	}

	// Cut at the shallowest heading level with at least two occurrences,
	// so a lone leading title does not swallow the whole article.
	counts := [8]int{}
	for _, id := range plan.BlockIDs {
		if b := doc.BlockByID(id); b != nil && b.Type == core.BlockHeading && b.Level >= 1 && b.Level <= 6 {
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

	cur := core.Section{Heading: "Overview"}
	flush := func() {
		if len(cur.BlockIDs) > 0 {
			o.Sections = append(o.Sections, cur)
		}
	}
	first := true
	for _, id := range plan.BlockIDs {
		b := doc.BlockByID(id)
		if b == nil {
			continue
		}
		if b.Type == core.BlockHeading && b.Level == cutLevel {
			// The article's own title heading leads the first section
			// instead of opening a new one.
			if first && len(cur.BlockIDs) == 0 {
				cur.BlockIDs = append(cur.BlockIDs, id)
				first = false
				continue
			}
			flush()
			cur = core.Section{Heading: b.Content}
		}
		cur.BlockIDs = append(cur.BlockIDs, id)
		first = false
	}
	flush()

	if len(o.Sections) == 0 {
		o.Sections = []core.Section{{Heading: "Overview", BlockIDs: append([]string(nil), plan.BlockIDs...)}}
	}

	for _, s := range o.Sections {
		if s.Heading != "Overview" {
			o.FAQSuggestions = append(o.FAQSuggestions, fmt.Sprintf("What does %q cover?", s.Heading))
		}
	}

	if n := len(o.Sections); n < softMinSections {
		o.Deviations = append(o.Deviations, fmt.Sprintf("only %d sections, below the %d-section target", n, softMinSections))
	} else if n > softMaxSections {
		o.Deviations = append(o.Deviations, fmt.Sprintf("%d sections, above the %d-section target", n, softMaxSections))
	}
	return o
}

func scopedListing(doc *core.NormalizedDocument, plan *core.ArticlePlan) string {
	scoped := &core.NormalizedDocument{Title: plan.ProposedTitle}
	for _, id := range plan.BlockIDs {
		if b := doc.BlockByID(id); b != nil {
			scoped.Blocks = append(scoped.Blocks, *b)
		}
	}
	return blockListing(scoped)
}

func articleSystemPrompt(plan *core.ArticlePlan) string {
	return fmt.Sprintf(`You structure one help-center article titled %q.
Scope: %s. Organize the listed blocks into 3-7 titled sections, optionally
with subsections. Every listed block ID must appear in exactly one section.
Suggest FAQ questions a reader of this article would ask, and related-link
topics. Respond with JSON:
{"title","sections":[{"heading","block_ids","subsections":[{"heading","block_ids"}]}],
"faq_suggestions":[...],"related_link_suggestions":[...]}`,
		plan.ProposedTitle, plan.ScopeSummary)
}

func articleSchema() *genai.Schema {
	sub := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"heading":   {Type: genai.TypeString},
			"block_ids": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"heading", "block_ids"},
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {Type: genai.TypeString},
			"sections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"heading":     {Type: genai.TypeString},
						"block_ids":   {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						"subsections": {Type: genai.TypeArray, Items: sub},
					},
					Required: []string{"heading"},
				},
			},
			"faq_suggestions":          {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"related_link_suggestions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"title", "sections"},
	}
}
