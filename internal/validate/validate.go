// Package validate implements stage 6: the quality gate over a full article
// set. Coverage is computed mechanically from the outline and is always
// authoritative; any oracle-reported figure is recorded for diagnostics
// only. Fidelity asks the oracle to audit claims against the fact base,
// with a mechanical evidence-ratio fallback. Placeholders and style are
// pure mechanical sweeps. One failed check marks the run partial.
package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
)

const stageName = "validation"

// placeholderPatterns are the markers the sweep looks for. Case-insensitive
// where the marker is prose, exact where it is a token.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[MISSING[^\]]*\]`),
	regexp.MustCompile(`\bTODO\b`),
	regexp.MustCompile(`\bTBD\b`),
	regexp.MustCompile(`\bTK\b`),
	regexp.MustCompile(`(?i)lorem ipsum`),
	regexp.MustCompile(`\bXXX\b`),
	regexp.MustCompile(`\[PLACEHOLDER[^\]]*\]`),
}

// Validator scores a run's article set against fixed thresholds.
type Validator struct {
	chain      *oracle.Chain
	thresholds config.Quality
}

func New(chain *oracle.Chain, thresholds config.Quality) *Validator {
	if thresholds.MinFidelityScore == 0 {
		thresholds.MinFidelityScore = 0.9
	}
	if thresholds.MinCoveragePercent == 0 {
		thresholds.MinCoveragePercent = 100
	}
	if thresholds.MinStylePercent == 0 {
		thresholds.MinStylePercent = 80
	}
	return &Validator{chain: chain, thresholds: thresholds}
}

// Input is everything stage 6 examines.
type Input struct {
	RunID     string
	Doc       *core.NormalizedDocument
	Outline   *core.GlobalOutline
	Prewrites map[string]*core.PrewriteData
	Articles  []*core.Article
}

// Validate produces the ValidationResult for a run revision.
func (v *Validator) Validate(ctx context.Context, in Input) (*core.ValidationResult, error) {
	res := &core.ValidationResult{
		ID:        uuid.NewString(),
		RunID:     in.RunID,
		CreatedAt: time.Now().UTC(),
	}

	res.CoveragePercent = Coverage(in.Doc, in.Outline)
	res.FidelityScore, res.OracleCoveragePercent = v.fidelity(ctx, in)
	res.Placeholders = PlaceholderSweep(in.Articles)
	res.StyleCompliancePercent = StyleCompliance(in.Articles)

	res.FidelityPassed = res.FidelityScore >= v.thresholds.MinFidelityScore
	res.CoveragePassed = res.CoveragePercent >= v.thresholds.MinCoveragePercent
	res.PlaceholdersPassed = len(res.Placeholders) == 0
	res.StylePassed = res.StyleCompliancePercent >= v.thresholds.MinStylePercent
	res.Passed = res.FidelityPassed && res.CoveragePassed && res.PlaceholdersPassed && res.StylePassed

	logger.Info("run validated", "run_id", in.RunID,
		"fidelity", res.FidelityScore, "coverage", res.CoveragePercent,
		"placeholders", len(res.Placeholders), "style", res.StyleCompliancePercent,
		"passed", res.Passed)
	return res, nil
}

// Coverage is the mechanical block-accounting figure: the share of document
// blocks that are either assigned to an article or discarded with a valid
// reason. After a reconciled outline this is 100 by construction; anything
// less means the invariant broke upstream.
func Coverage(doc *core.NormalizedDocument, outline *core.GlobalOutline) float64 {
	if len(doc.Blocks) == 0 {
		return 0
	}
	covered := map[string]bool{}
	for _, a := range outline.Articles {
		for _, id := range a.BlockIDs {
			covered[id] = true
		}
	}
	for _, d := range outline.Discarded {
		if d.Reason.Valid() {
			covered[d.BlockID] = true
		}
	}
	n := 0
	for _, b := range doc.Blocks {
		if covered[b.ID] {
			n++
		}
	}
	return float64(n) / float64(len(doc.Blocks)) * 100
}

type oracleAudit struct {
	FidelityScore   float64 `json:"fidelity_score"`
	CoveragePercent float64 `json:"coverage_percent"`
	Unsupported     []struct {
		ArticleID string `json:"article_id"`
		Claim     string `json:"claim"`
	} `json:"unsupported_claims"`
}

// fidelity returns the fidelity score and the oracle's own coverage figure
// (diagnostic only). Chain failure falls back to the mechanical
// evidence-ratio score.
func (v *Validator) fidelity(ctx context.Context, in Input) (float64, float64) {
	if v.chain != nil {
		var resp oracleAudit
		provider, err := v.chain.Complete(ctx, oracle.Request{
			Stage:  stageName,
			System: auditSystemPrompt,
			User:   auditSheet(in),
			Schema: auditSchema(),
		}, &resp)
		if err == nil && resp.FidelityScore >= 0 && resp.FidelityScore <= 1 {
			logger.Debug("fidelity audited", "run_id", in.RunID, "provider", provider, "unsupported", len(resp.Unsupported))
			return resp.FidelityScore, resp.CoveragePercent
		}
		logger.Warn("fidelity oracle failed, using evidence ratio", "run_id", in.RunID)
	}
	return MechanicalFidelity(in.Prewrites), 0
}

// MechanicalFidelity is the fallback fidelity estimate: the share of facts
// across the run that carry at least one evidence citation. Prewrite already
// drops hallucinated citations, so this measures how much of the fact base
// survived grounding.
func MechanicalFidelity(prewrites map[string]*core.PrewriteData) float64 {
	total, grounded := 0, 0
	gaps := 0
	for _, pw := range prewrites {
		for _, sec := range pw.Sections {
			gaps += len(sec.Gaps)
			for _, f := range sec.Facts {
				total++
				if len(f.EvidenceBlockIDs) > 0 {
					grounded++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	score := float64(grounded) / float64(total)
	// Recorded gaps dilute confidence in the fact base.
	if gaps > 0 {
		penalty := float64(gaps) * 0.02
		if penalty > 0.2 {
			penalty = 0.2
		}
		score -= penalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// PlaceholderSweep scans markdown bodies for incomplete-content markers and
// empty sections.
func PlaceholderSweep(articles []*core.Article) []core.PlaceholderHit {
	var hits []core.PlaceholderHit
	for _, art := range articles {
		for _, re := range placeholderPatterns {
			for _, loc := range re.FindAllStringIndex(art.Markdown, -1) {
				hits = append(hits, core.PlaceholderHit{
					ArticleID: art.ID,
					Pattern:   re.String(),
					Context:   contextAround(art.Markdown, loc[0], loc[1]),
				})
			}
		}
		for _, heading := range emptySections(art.Markdown) {
			hits = append(hits, core.PlaceholderHit{
				ArticleID: art.ID,
				Pattern:   "empty-section",
				Context:   heading,
			})
		}
	}
	return hits
}

// emptySections returns headings with no body text before the next heading
// of the same or shallower level. A deeper subheading counts as content for
// its parent.
func emptySections(md string) []string {
	lines := strings.Split(md, "\n")
	var out []string
	heading := ""
	level := 0
	body := false
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			l := 0
			for l < len(line) && line[l] == '#' {
				l++
			}
			if heading != "" && !body && l <= level {
				out = append(out, heading)
			}
			heading = strings.TrimSpace(strings.TrimLeft(line, "# "))
			level = l
			body = false
			continue
		}
		if strings.TrimSpace(line) != "" {
			body = true
		}
	}
	if heading != "" && !body {
		out = append(out, heading)
	}
	return out
}

// styleChecks are the required structural elements of the article template.
type styleCheck struct {
	name string
	ok   func(a *core.Article) bool
}

var styleChecks = []styleCheck{
	{"h1_title", func(a *core.Article) bool {
		return strings.HasPrefix(a.Markdown, "# ")
	}},
	{"intro", func(a *core.Article) bool {
		return strings.TrimSpace(a.Intro) != ""
	}},
	{"toc", func(a *core.Article) bool {
		return len(a.TOC) > 0 && strings.Contains(a.Markdown, "**In this article**")
	}},
	{"sections", func(a *core.Article) bool {
		return strings.Contains(a.Markdown, "\n## ")
	}},
	{"faq", func(a *core.Article) bool {
		return len(a.FAQ) >= 3
	}},
	{"toc_anchors_resolve", func(a *core.Article) bool {
		for _, e := range a.TOC {
			if !strings.Contains(a.Markdown, "## "+e.Title) {
				return false
			}
		}
		return true
	}},
}

// StyleCompliance is the share of template checks passing across the
// article set, as a percentage.
func StyleCompliance(articles []*core.Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	total, passed := 0, 0
	for _, art := range articles {
		for _, c := range styleChecks {
			total++
			if c.ok(art) {
				passed++
			}
		}
	}
	return float64(passed) / float64(total) * 100
}

func contextAround(s string, start, end int) string {
	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(s) {
		hi = len(s)
	}
	return strings.TrimSpace(s[lo:hi])
}

func auditSheet(in Input) string {
	var b strings.Builder
	for _, art := range in.Articles {
		fmt.Fprintf(&b, "Article %s: %s\n", art.ID, art.Title)
		fmt.Fprintf(&b, "Body:\n%s\n", art.Markdown)
		if pw, ok := in.Prewrites[art.ID]; ok {
			b.WriteString("Facts the body must stay within:\n")
			for _, sec := range pw.Sections {
				for _, f := range sec.Facts {
					fmt.Fprintf(&b, "- %s\n", f.Text)
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

const auditSystemPrompt = `You audit generated help-center articles against their fact sheets.
Score fidelity_score in [0,1]: the share of article claims supported by the
listed facts. List unsupported claims. Estimate coverage_percent: how much
of the fact material the articles convey. Respond with JSON.`

func auditSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"fidelity_score":   {Type: genai.TypeNumber},
			"coverage_percent": {Type: genai.TypeNumber},
			"unsupported_claims": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"article_id": {Type: genai.TypeString},
						"claim":      {Type: genai.TypeString},
					},
					Required: []string{"claim"},
				},
			},
		},
		Required: []string{"fidelity_score"},
	}
}
