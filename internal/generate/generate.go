// Package generate implements stage 5: turning an outline plus its fact
// base into a draft article. Every article follows the same structural
// template (H1, intro, mini-TOC, outline sections, FAQ, related links), and
// prose is synthesized from the prewrite facts and must-include examples
// only. Markdown is canonical; HTML is derived from it.
package generate

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"google.golang.org/genai"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
)

const stageName = "generation"

// minFAQ is the template floor: FAQ entries are padded from outline
// suggestions until the article has at least this many.
const minFAQ = 3

// Generator drafts articles. A nil chain uses deterministic fact-derived
// prose.
type Generator struct {
	chain *oracle.Chain
}

func NewGenerator(chain *oracle.Chain) *Generator {
	return &Generator{chain: chain}
}

// Input bundles everything one article draft depends on. ArticleIndex maps
// sibling article IDs to titles so related-link suggestions can resolve to
// real targets.
type Input struct {
	RunID        string
	AnalysisID   string
	OutlineID    string
	PrewriteID   string
	Outline      *core.ArticleOutline
	Prewrite     *core.PrewriteData
	ArticleIndex map[string]string
	Media        []core.MediaRef
}

type oracleProse struct {
	Intro    string `json:"intro"`
	Sections []struct {
		Heading string `json:"heading"`
		Prose   string `json:"prose"`
	} `json:"sections"`
	FAQ []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"faq"`
}

// Generate drafts one article from its outline and fact base.
func (g *Generator) Generate(ctx context.Context, in Input) (*core.Article, error) {
	art := &core.Article{
		ID:     in.Outline.ArticleID,
		RunID:  in.RunID,
		Title:  in.Outline.Title,
		Status: core.StatusDraft,
		Media:  in.Media,
		Metadata: core.ArticleMetadata{
			RunID:           in.RunID,
			AnalysisID:      in.AnalysisID,
			OutlineID:       in.OutlineID,
			PrewriteID:      in.PrewriteID,
			SectionBlockIDs: map[string][]string{},
			Generator:       "heuristic",
		},
		CreatedAt: time.Now().UTC(),
	}
	for i := range in.Outline.Sections {
		sec := &in.Outline.Sections[i]
		art.Metadata.SectionBlockIDs[sec.Heading] = sec.AllBlockIDs()
	}

	prose := g.prose(ctx, in, art)

	art.Intro = prose.Intro
	art.FAQ = padFAQ(faqFromProse(prose), in.Outline.FAQSuggestions, in.Prewrite)
	art.RelatedLinks = resolveRelated(in.Outline.RelatedLinks, in.Outline.ArticleID, in.ArticleIndex)
	for _, sec := range in.Outline.Sections {
		art.TOC = append(art.TOC, core.TOCEntry{Title: sec.Heading, Anchor: core.Anchor(sec.Heading)})
	}

	art.Markdown = render(art, in, prose)
	html, err := RenderHTML(art.Markdown)
	if err != nil {
		return nil, fmt.Errorf("render article %s: %w", art.ID, err)
	}
	art.HTML = html
	return art, nil
}

func (g *Generator) prose(ctx context.Context, in Input, art *core.Article) *oracleProse {
	if g.chain != nil {
		var resp oracleProse
		provider, err := g.chain.Complete(ctx, oracle.Request{
			Stage:  stageName,
			System: proseSystemPrompt(in.Outline.Title),
			User:   factSheet(in),
			Schema: proseSchema(),
		}, &resp)
		if err == nil && resp.Intro != "" && len(resp.Sections) > 0 {
			art.Metadata.Generator = "oracle"
			logger.Info("article drafted", "run_id", in.RunID, "article_id", in.Outline.ArticleID, "provider", provider)
			return &resp
		}
		logger.Warn("generation oracle failed, using fact-derived prose", "run_id", in.RunID, "article_id", in.Outline.ArticleID)
	}
	return fallbackProse(in)
}

// fallbackProse composes deterministic prose from the fact base. Dry, but
// every sentence is grounded.
func fallbackProse(in Input) *oracleProse {
	p := &oracleProse{}

	var topics []string
	for _, sec := range in.Outline.Sections {
		topics = append(topics, sec.Heading)
	}
	p.Intro = fmt.Sprintf("This article covers %s.", joinNatural(topics))

	for _, sec := range in.Outline.Sections {
		ps := in.Prewrite.SectionFor(sec.Heading)
		var b strings.Builder
		if ps != nil && len(ps.Facts) > 0 {
			for _, f := range ps.Facts {
				b.WriteString(ensureSentence(f.Text))
				b.WriteString(" ")
			}
		} else {
			b.WriteString(fmt.Sprintf("The source document does not provide details for %s.", sec.Heading))
		}
		p.Sections = append(p.Sections, struct {
			Heading string `json:"heading"`
			Prose   string `json:"prose"`
		}{Heading: sec.Heading, Prose: strings.TrimSpace(b.String())})
	}
	return p
}

func faqFromProse(p *oracleProse) []core.FAQ {
	var out []core.FAQ
	for _, f := range p.FAQ {
		if strings.TrimSpace(f.Question) == "" || strings.TrimSpace(f.Answer) == "" {
			continue
		}
		out = append(out, core.FAQ{Question: strings.TrimSpace(f.Question), Answer: strings.TrimSpace(f.Answer)})
	}
	return out
}

// padFAQ tops the FAQ list up to the template floor using outline
// suggestions, answering each from the fact base.
func padFAQ(faq []core.FAQ, suggestions []string, pre *core.PrewriteData) []core.FAQ {
	have := map[string]bool{}
	for _, f := range faq {
		have[strings.ToLower(f.Question)] = true
	}
	for _, q := range suggestions {
		if len(faq) >= minFAQ {
			break
		}
		if q == "" || have[strings.ToLower(q)] {
			continue
		}
		faq = append(faq, core.FAQ{Question: q, Answer: answerFor(q, pre)})
		have[strings.ToLower(q)] = true
	}
	// Suggestions exhausted: derive questions from section headings.
	if pre != nil {
		for _, sec := range pre.Sections {
			if len(faq) >= minFAQ {
				break
			}
			q := fmt.Sprintf("What should I know about %s?", strings.ToLower(sec.Heading))
			if have[strings.ToLower(q)] || len(sec.Facts) == 0 {
				continue
			}
			faq = append(faq, core.FAQ{Question: q, Answer: ensureSentence(sec.Facts[0].Text)})
			have[strings.ToLower(q)] = true
		}
	}
	return faq
}

func answerFor(question string, pre *core.PrewriteData) string {
	if pre != nil {
		q := strings.ToLower(question)
		for _, sec := range pre.Sections {
			if strings.Contains(q, strings.ToLower(sec.Heading)) && len(sec.Facts) > 0 {
				return ensureSentence(sec.Facts[0].Text)
			}
		}
		for _, sec := range pre.Sections {
			if len(sec.Facts) > 0 {
				return fmt.Sprintf("See the %s section. %s", sec.Heading, ensureSentence(sec.Facts[0].Text))
			}
		}
	}
	return "See the sections above for details."
}

// resolveRelated matches suggestion strings against sibling article titles.
// Unresolvable suggestions are dropped; QA validates what remains.
func resolveRelated(suggestions []string, selfID string, index map[string]string) []core.RelatedLink {
	var out []core.RelatedLink
	for _, s := range suggestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		for id, title := range index {
			if id == selfID {
				continue
			}
			if strings.EqualFold(title, s) ||
				strings.Contains(strings.ToLower(title), strings.ToLower(s)) ||
				strings.Contains(strings.ToLower(s), strings.ToLower(title)) {
				out = append(out, core.RelatedLink{Title: title, Target: id})
				break
			}
		}
	}
	return out
}

// render assembles the canonical markdown for the fixed template.
func render(art *core.Article, in Input, prose *oracleProse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", art.Title)
	fmt.Fprintf(&b, "%s\n\n", art.Intro)

	if len(art.TOC) > 0 {
		b.WriteString("**In this article**\n\n")
		for _, e := range art.TOC {
			fmt.Fprintf(&b, "- [%s](#%s)\n", e.Title, e.Anchor)
		}
		b.WriteString("\n")
	}

	for _, sec := range in.Outline.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Heading)
		if p := proseFor(prose, sec.Heading); p != "" {
			fmt.Fprintf(&b, "%s\n\n", p)
		}
		if ps := in.Prewrite.SectionFor(sec.Heading); ps != nil {
			for _, ex := range ps.MustIncludeExamples {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", ex)
			}
		}
	}

	for _, m := range art.Media {
		fmt.Fprintf(&b, "![%s](%s)\n\n", m.AltText, m.URL)
	}

	if len(art.FAQ) > 0 {
		b.WriteString("## Frequently Asked Questions\n\n")
		for _, f := range art.FAQ {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", f.Question, f.Answer)
		}
	}

	if len(art.RelatedLinks) > 0 {
		b.WriteString("## Related Articles\n\n")
		for _, l := range art.RelatedLinks {
			fmt.Fprintf(&b, "- [%s](%s)\n", l.Title, l.Target)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String()) + "\n"
}

func proseFor(p *oracleProse, heading string) string {
	for _, s := range p.Sections {
		if strings.EqualFold(s.Heading, heading) {
			return strings.TrimSpace(s.Prose)
		}
	}
	return ""
}

// RenderHTML converts article markdown to its HTML rendition. Later
// stages that rewrite markdown call this to keep both bodies in step.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func ensureSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':':
		return s
	}
	return s + "."
}

func joinNatural(items []string) string {
	switch len(items) {
	case 0:
		return "this topic"
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

func factSheet(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article: %s\n", in.Outline.Title)
	for _, sec := range in.Outline.Sections {
		fmt.Fprintf(&b, "\nSection: %s\n", sec.Heading)
		ps := in.Prewrite.SectionFor(sec.Heading)
		if ps == nil {
			continue
		}
		for _, f := range ps.Facts {
			fmt.Fprintf(&b, "- %s\n", f.Text)
		}
		for _, ex := range ps.MustIncludeExamples {
			fmt.Fprintf(&b, "Example (include verbatim): %s\n", ex)
		}
		for _, gap := range ps.Gaps {
			fmt.Fprintf(&b, "Known gap (do not invent): %s\n", gap.Need)
		}
	}
	if len(in.Outline.FAQSuggestions) > 0 {
		fmt.Fprintf(&b, "\nFAQ candidates:\n")
		for _, q := range in.Outline.FAQSuggestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	return b.String()
}

func proseSystemPrompt(title string) string {
	return fmt.Sprintf(`You write the help-center article %q from a fact sheet.
Use only the listed facts; never add information they do not state. Include
each verbatim example in its section. Write a short intro, flowing prose per
section, and at least %d FAQ entries answerable from the facts. Respond with
JSON: {"intro","sections":[{"heading","prose"}],"faq":[{"question","answer"}]}`, title, minFAQ)
}

func proseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"intro": {Type: genai.TypeString},
			"sections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"heading": {Type: genai.TypeString},
						"prose":   {Type: genai.TypeString},
					},
					Required: []string{"heading", "prose"},
				},
			},
			"faq": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question": {Type: genai.TypeString},
						"answer":   {Type: genai.TypeString},
					},
					Required: []string{"question", "answer"},
				},
			},
		},
		Required: []string{"intro", "sections"},
	}
}
