// Package prewrite implements stage 4: building the per-article fact base.
// Generation never sees source blocks directly; it sees only the facts
// extracted here, each citing the block IDs that evidence it. A citation to
// a block outside the section's assignment is a hallucination and is
// dropped on the spot.
package prewrite

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

const stageName = "prewrite"

// minFacts is the floor below which a section with source material present
// gets one retry with a narrower prompt before a gap is recorded.
const minFacts = 5

// Extractor builds PrewriteData for articles. A nil chain uses the
// deterministic sentence splitter only.
type Extractor struct {
	chain *oracle.Chain
}

func NewExtractor(chain *oracle.Chain) *Extractor {
	return &Extractor{chain: chain}
}

type oracleFacts struct {
	Facts []struct {
		Text             string   `json:"text"`
		EvidenceBlockIDs []string `json:"evidence_block_ids"`
	} `json:"facts"`
	MustIncludeExamples []string `json:"must_include_examples"`
	Terms               []string `json:"terms"`
}

// Extract produces the fact base for one article outline.
func (e *Extractor) Extract(ctx context.Context, runID string, doc *core.NormalizedDocument, outline *core.ArticleOutline) (*core.PrewriteData, error) {
	data := &core.PrewriteData{
		ID:        uuid.NewString(),
		RunID:     runID,
		ArticleID: outline.ArticleID,
		Source:    "oracle",
		CreatedAt: time.Now().UTC(),
	}
	if e.chain == nil {
		data.Source = "heuristic"
	}

	for _, sec := range outline.Sections {
		ps, err := e.extractSection(ctx, runID, doc, outline, &sec)
		if err != nil {
			return nil, err
		}
		if ps.Source == "heuristic" {
			data.Source = "heuristic"
		}
		data.Sections = append(data.Sections, ps.PrewriteSection)
	}
	return data, nil
}

type sectionResult struct {
	core.PrewriteSection
	Source string
}

func (e *Extractor) extractSection(ctx context.Context, runID string, doc *core.NormalizedDocument, outline *core.ArticleOutline, sec *core.Section) (*sectionResult, error) {
	scope := sec.AllBlockIDs()
	out := &sectionResult{
		PrewriteSection: core.PrewriteSection{Heading: sec.Heading},
		Source:          "oracle",
	}

	if len(scope) == 0 {
		out.Source = "heuristic"
		out.Gaps = append(out.Gaps, core.Gap{
			Need:  "source material",
			Where: sec.Heading,
		})
		return out, nil
	}

	if e.chain != nil {
		for attempt := 0; attempt < 2; attempt++ {
			var resp oracleFacts
			system := factSystemPrompt(outline.Title, sec.Heading, false)
			if attempt == 1 {
				system = factSystemPrompt(outline.Title, sec.Heading, true)
			}
			_, err := e.chain.Complete(ctx, oracle.Request{
				Stage:  stageName,
				System: system,
				User:   sectionListing(doc, sec.Heading, scope),
				Schema: factSchema(),
			}, &resp)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				break
			}

			facts, dropped := filterFacts(resp.Facts, scope)
			if dropped > 0 {
				logger.Warn("dropped facts with hallucinated citations", "run_id", runID, "article_id", outline.ArticleID, "section", sec.Heading, "dropped", dropped)
			}
			if len(facts) >= minFacts || attempt == 1 {
				out.Facts = facts
				out.MustIncludeExamples = resp.MustIncludeExamples
				out.Terms = resp.Terms
				if len(facts) < minFacts {
					out.Gaps = append(out.Gaps, core.Gap{
						Need:  fmt.Sprintf("only %d grounded facts extracted", len(facts)),
						Where: sec.Heading,
					})
				}
				return out, nil
			}
			logger.Debug("retrying fact extraction with narrower prompt", "run_id", runID, "section", sec.Heading, "facts", len(facts))
		}
	}

	out.Source = "heuristic"
	out.Facts = FallbackFacts(doc, scope)
	out.MustIncludeExamples = codeExamples(doc, scope)
	if len(out.Facts) < minFacts {
		out.Gaps = append(out.Gaps, core.Gap{
			Need:  fmt.Sprintf("only %d grounded facts extracted", len(out.Facts)),
			Where: sec.Heading,
		})
	}
	return out, nil
}

// filterFacts drops facts whose citations are empty or point outside the
// section's assigned blocks. Partial citation lists are trimmed to the
// in-scope subset.
func filterFacts(raw []struct {
	Text             string   `json:"text"`
	EvidenceBlockIDs []string `json:"evidence_block_ids"`
}, scope []string) ([]core.Fact, int) {
	inScope := make(map[string]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}

	var facts []core.Fact
	dropped := 0
	for _, f := range raw {
		if strings.TrimSpace(f.Text) == "" {
			dropped++
			continue
		}
		var evidence []string
		for _, id := range f.EvidenceBlockIDs {
			if inScope[id] {
				evidence = append(evidence, id)
			}
		}
		if len(evidence) == 0 {
			dropped++
			continue
		}
		facts = append(facts, core.Fact{Text: strings.TrimSpace(f.Text), EvidenceBlockIDs: evidence})
	}
	return facts, dropped
}

// FallbackFacts turns each sentence of the scoped blocks into a fact citing
// its own block. Deterministic and always grounded.
func FallbackFacts(doc *core.NormalizedDocument, scope []string) []core.Fact {
	var facts []core.Fact
	for _, id := range scope {
		b := doc.BlockByID(id)
		if b == nil {
			continue
		}
		switch b.Type {
		case core.BlockCode:
			continue // carried as must-include examples, not prose facts
		case core.BlockHeading:
			continue
		}
		for _, s := range splitSentences(b.Content) {
			facts = append(facts, core.Fact{Text: s, EvidenceBlockIDs: []string{id}})
		}
	}
	return facts
}

func codeExamples(doc *core.NormalizedDocument, scope []string) []string {
	var out []string
	for _, id := range scope {
		if b := doc.BlockByID(id); b != nil && b.Type == core.BlockCode {
			out = append(out, b.Content)
		}
	}
	return out
}

func splitSentences(s string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if t := strings.TrimSpace(cur.String()); len(strings.Fields(t)) >= 3 {
				out = append(out, t)
			}
			cur.Reset()
		}
	}
	if t := strings.TrimSpace(cur.String()); len(strings.Fields(t)) >= 3 {
		out = append(out, t)
	}
	return out
}

func sectionListing(doc *core.NormalizedDocument, heading string, scope []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\n\nSource blocks:\n", heading)
	for _, id := range scope {
		if blk := doc.BlockByID(id); blk != nil {
			fmt.Fprintf(&b, "%s (%s): %s\n", blk.ID, blk.Type, blk.Content)
		}
	}
	return b.String()
}

func factSystemPrompt(title, heading string, narrow bool) string {
	base := fmt.Sprintf(`You extract atomic facts for the section %q of the article %q.
Each fact is one self-contained statement a technical writer could use, and
must cite the IDs of the source blocks that evidence it. Never state
anything the blocks do not support. Aim for at least %d facts when the
material allows. Also list verbatim examples that must appear in the section
(commands, code, exact values) and domain terms used.`, heading, title, minFacts)
	if narrow {
		base += `
Previous extraction was too sparse. Re-read each block individually and
extract every distinct statement it makes, however small.`
	}
	return base
}

func factSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"facts": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text": {Type: genai.TypeString},
						"evidence_block_ids": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"text", "evidence_block_ids"},
				},
			},
			"must_include_examples": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"terms":                 {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"facts"},
	}
}
