// Package qa implements stage 7: cross-article analysis over the whole
// set. Similarity is Jaccard overlap of token shingles; the threshold is
// policy, not code, and comes from configuration (default 0.8). The
// consolidation pass applies only safe mechanical fixes and records the
// outcome of every attempt.
package qa

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/logger"
)

// defaultTerminology seeds the canonical-form table. Config entries extend
// and override it.
var defaultTerminology = map[string]string{
	"api key":  "API key",
	"apikey":   "API key",
	"e-mail":   "email",
	"log-in":   "log in",
	"set-up":   "set up",
	"web site": "website",
}

// Analyzer runs the cross-article checks. Stage 7 is fully mechanical; no
// oracle is involved.
type Analyzer struct {
	threshold   float64
	terminology map[string]string
}

func New(cfg config.QA) *Analyzer {
	t := cfg.SimilarityThreshold
	if t <= 0 {
		t = 0.8
	}
	terms := make(map[string]string, len(defaultTerminology)+len(cfg.Terminology))
	for k, v := range defaultTerminology {
		terms[strings.ToLower(k)] = v
	}
	for k, v := range cfg.Terminology {
		terms[strings.ToLower(k)] = v
	}
	return &Analyzer{threshold: t, terminology: terms}
}

// Analyze inspects the article set and applies the consolidation pass,
// mutating articles in place where a fix is safe.
func (a *Analyzer) Analyze(runID string, articles []*core.Article) (*core.QAResult, error) {
	res := &core.QAResult{
		ID:        uuid.NewString(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}

	res.Duplicates = a.findDuplicates(articles)
	res.InvalidLinks = findInvalidLinks(articles)
	res.DuplicateFAQs = a.findDuplicateFAQs(articles)
	res.TerminologyIssues = a.findTerminologyIssues(articles)
	res.Actions = a.consolidate(articles, res)

	logger.Info("cross-article analysis done", "run_id", runID,
		"duplicates", len(res.Duplicates), "invalid_links", len(res.InvalidLinks),
		"duplicate_faqs", len(res.DuplicateFAQs), "terminology", len(res.TerminologyIssues),
		"actions", len(res.Actions))
	return res, nil
}

// Similarity is the Jaccard overlap of 3-token shingles of the two texts.
// Short texts fall back to unigram overlap.
func Similarity(a, b string) float64 {
	sa := shingles(a)
	sb := shingles(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for s := range sa {
		if sb[s] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func shingles(s string) map[string]bool {
	tokens := tokenRe.FindAllString(strings.ToLower(s), -1)
	out := map[string]bool{}
	if len(tokens) < 3 {
		for _, t := range tokens {
			out[t] = true
		}
		return out
	}
	for i := 0; i+3 <= len(tokens); i++ {
		out[strings.Join(tokens[i:i+3], " ")] = true
	}
	return out
}

// findDuplicates compares intros and same-set sections pairwise across
// distinct articles.
func (a *Analyzer) findDuplicates(articles []*core.Article) []core.DuplicateContent {
	type unit struct {
		articleID string
		section   string
		text      string
	}
	var units []unit
	for _, art := range articles {
		units = append(units, unit{art.ID, "intro", art.Intro})
		for heading, text := range sectionBodies(art.Markdown) {
			units = append(units, unit{art.ID, heading, text})
		}
	}

	var dups []core.DuplicateContent
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			if units[i].articleID == units[j].articleID {
				continue
			}
			if sim := Similarity(units[i].text, units[j].text); sim >= a.threshold {
				dups = append(dups, core.DuplicateContent{
					ArticleA:   units[i].articleID,
					ArticleB:   units[j].articleID,
					SectionA:   units[i].section,
					SectionB:   units[j].section,
					Similarity: sim,
				})
			}
		}
	}
	return dups
}

// sectionBodies splits markdown into level-2 section bodies by heading.
func sectionBodies(md string) map[string]string {
	out := map[string]string{}
	var heading string
	var body []string
	flush := func() {
		if heading != "" {
			out[heading] = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = nil
	}
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		if heading != "" {
			body = append(body, line)
		}
	}
	flush()
	return out
}

// findInvalidLinks resolves every related link against the run's article
// and anchor index.
func findInvalidLinks(articles []*core.Article) []core.InvalidLink {
	anchors := map[string]map[string]bool{}
	for _, art := range articles {
		anchors[art.ID] = map[string]bool{}
		for _, e := range art.TOC {
			anchors[art.ID][e.Anchor] = true
		}
	}

	var invalid []core.InvalidLink
	for _, art := range articles {
		for _, l := range art.RelatedLinks {
			target, anchor, hasAnchor := strings.Cut(l.Target, "#")
			sections, ok := anchors[target]
			switch {
			case target == "":
				invalid = append(invalid, core.InvalidLink{ArticleID: art.ID, Link: l, Reason: "empty target"})
			case !ok:
				invalid = append(invalid, core.InvalidLink{ArticleID: art.ID, Link: l, Reason: fmt.Sprintf("article %s does not exist", target)})
			case hasAnchor && !sections[anchor]:
				invalid = append(invalid, core.InvalidLink{ArticleID: art.ID, Link: l, Reason: fmt.Sprintf("anchor %s not in article %s", anchor, target)})
			case target == art.ID:
				invalid = append(invalid, core.InvalidLink{ArticleID: art.ID, Link: l, Reason: "self link"})
			}
		}
	}
	return invalid
}

func (a *Analyzer) findDuplicateFAQs(articles []*core.Article) []core.DuplicateFAQ {
	type q struct {
		articleID string
		question  string
	}
	var qs []q
	for _, art := range articles {
		for _, f := range art.FAQ {
			qs = append(qs, q{art.ID, f.Question})
		}
	}
	var dups []core.DuplicateFAQ
	for i := 0; i < len(qs); i++ {
		for j := i + 1; j < len(qs); j++ {
			if qs[i].articleID == qs[j].articleID {
				continue
			}
			if sim := Similarity(qs[i].question, qs[j].question); sim >= a.threshold {
				dups = append(dups, core.DuplicateFAQ{
					ArticleA:   qs[i].articleID,
					ArticleB:   qs[j].articleID,
					Question:   qs[i].question,
					Similarity: sim,
				})
			}
		}
	}
	return dups
}

func (a *Analyzer) findTerminologyIssues(articles []*core.Article) []core.TerminologyIssue {
	var issues []core.TerminologyIssue
	var variants []string
	for v := range a.terminology {
		variants = append(variants, v)
	}
	sort.Strings(variants)

	for _, art := range articles {
		lower := strings.ToLower(art.Markdown)
		for _, v := range variants {
			canonical := a.terminology[v]
			if strings.EqualFold(v, canonical) {
				continue
			}
			count := 0
			for _, idx := range indexAll(lower, v) {
				// Skip occurrences already in canonical form.
				if art.Markdown[idx:idx+len(v)] == canonical {
					continue
				}
				count++
			}
			if count > 0 {
				issues = append(issues, core.TerminologyIssue{
					ArticleID: art.ID,
					Found:     v,
					Canonical: canonical,
					Count:     count,
				})
			}
		}
	}
	return issues
}

func indexAll(s, sub string) []int {
	var out []int
	for start := 0; ; {
		i := strings.Index(s[start:], sub)
		if i < 0 {
			return out
		}
		out = append(out, start+i)
		start += i + len(sub)
	}
}

// consolidate applies the safe fixes: drop invalid links, normalize
// terminology. Duplicate content and duplicate FAQs are reported for the
// adjuster and reviewer, not auto-rewritten.
func (a *Analyzer) consolidate(articles []*core.Article, res *core.QAResult) []core.ConsolidationAction {
	var actions []core.ConsolidationAction

	byID := map[string]*core.Article{}
	for _, art := range articles {
		byID[art.ID] = art
	}

	for _, il := range res.InvalidLinks {
		art := byID[il.ArticleID]
		act := core.ConsolidationAction{
			Action: "repoint_link",
			Target: fmt.Sprintf("%s -> %s", il.ArticleID, il.Link.Target),
		}
		if art == nil {
			act.Detail = "article not found"
			actions = append(actions, act)
			continue
		}
		kept := art.RelatedLinks[:0]
		removed := false
		for _, l := range art.RelatedLinks {
			if l == il.Link && !removed {
				removed = true
				continue
			}
			kept = append(kept, l)
		}
		art.RelatedLinks = kept
		act.Success = removed
		act.Action = "drop_invalid_link"
		if !removed {
			act.Detail = "link already removed"
		} else {
			rebuildRelatedSection(art)
		}
		actions = append(actions, act)
	}

	for _, ti := range res.TerminologyIssues {
		art := byID[ti.ArticleID]
		act := core.ConsolidationAction{
			Action: "normalize_term",
			Target: fmt.Sprintf("%s: %s -> %s", ti.ArticleID, ti.Found, ti.Canonical),
		}
		if art == nil {
			actions = append(actions, act)
			continue
		}
		art.Markdown = replaceFold(art.Markdown, ti.Found, ti.Canonical)
		art.Intro = replaceFold(art.Intro, ti.Found, ti.Canonical)
		act.Success = true
		actions = append(actions, act)
	}

	for _, d := range res.Duplicates {
		actions = append(actions, core.ConsolidationAction{
			Action: "drop_duplicate",
			Target: fmt.Sprintf("%s/%s ~ %s/%s", d.ArticleA, d.SectionA, d.ArticleB, d.SectionB),
			Detail: "needs reviewer decision",
		})
	}
	for _, d := range res.DuplicateFAQs {
		actions = append(actions, core.ConsolidationAction{
			Action: "merge_faq",
			Target: fmt.Sprintf("%s ~ %s: %s", d.ArticleA, d.ArticleB, d.Question),
			Detail: "needs reviewer decision",
		})
	}
	return actions
}

// rebuildRelatedSection regenerates the Related Articles block after link
// edits so markdown stays consistent with the struct.
func rebuildRelatedSection(art *core.Article) {
	lines := strings.Split(art.Markdown, "\n")
	var out []string
	skipping := false
	for _, line := range lines {
		if strings.HasPrefix(line, "## Related Articles") {
			skipping = true
			continue
		}
		if skipping {
			if strings.HasPrefix(line, "## ") {
				skipping = false
			} else {
				continue
			}
		}
		out = append(out, line)
	}
	md := strings.TrimSpace(strings.Join(out, "\n"))
	if len(art.RelatedLinks) > 0 {
		var b strings.Builder
		b.WriteString(md)
		b.WriteString("\n\n## Related Articles\n\n")
		for _, l := range art.RelatedLinks {
			fmt.Fprintf(&b, "- [%s](%s)\n", l.Title, l.Target)
		}
		md = strings.TrimSpace(b.String())
	}
	art.Markdown = md + "\n"
}

// replaceFold replaces case-insensitive occurrences of old with the
// canonical form.
func replaceFold(s, old, canonical string) string {
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	start := 0
	for {
		i := strings.Index(lower[start:], oldLower)
		if i < 0 {
			b.WriteString(s[start:])
			return b.String()
		}
		i += start
		b.WriteString(s[start:i])
		b.WriteString(canonical)
		start = i + len(old)
	}
}
