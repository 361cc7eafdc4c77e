// Package adjust implements stage 8: length rebalancing. Word counts drive
// merge and split proposals, but every proposal is reconciled against the
// run's granularity band before it is applied; an action that would leave
// the article count outside the band is recorded as skipped, not applied.
package adjust

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/logger"
)

// Adjuster rebalances an article set in place.
type Adjuster struct {
	minArticleWords int
	maxSectionWords int
	optimalMin      int
	optimalMax      int
}

func New(cfg config.Adjuster) *Adjuster {
	a := &Adjuster{
		minArticleWords: cfg.MinArticleWords,
		maxSectionWords: cfg.MaxSectionWords,
		optimalMin:      cfg.OptimalMinWords,
		optimalMax:      cfg.OptimalMaxWords,
	}
	if a.minArticleWords <= 0 {
		a.minArticleWords = 300
	}
	if a.maxSectionWords <= 0 {
		a.maxSectionWords = 1200
	}
	if a.optimalMin <= 0 {
		a.optimalMin = 500
	}
	if a.optimalMax <= 0 {
		a.optimalMax = 2000
	}
	return a
}

// Adjust analyzes the set, applies band-safe actions, and returns the
// report. The articles slice is rewritten in place; its new contents are
// the post-adjustment set.
func (a *Adjuster) Adjust(runID string, articles *[]*core.Article, granularity core.Granularity) (*core.AdjustmentResult, error) {
	res := &core.AdjustmentResult{
		ID:        uuid.NewString(),
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
	}

	res.MergeSuggestions = a.mergeSuggestions(*articles)
	res.SplitSuggestions = a.splitSuggestions(*articles)

	minCount, maxCount := granularity.ArticleRange()

	for _, ms := range res.MergeSuggestions {
		act := core.AdjustmentAction{Action: "merge", Target: strings.Join(ms.ArticleIDs, "+")}
		if len(*articles)-1 < minCount {
			act.Detail = fmt.Sprintf("skipped: would drop below %d articles", minCount)
		} else if err := applyMerge(articles, ms.ArticleIDs); err != nil {
			act.Detail = err.Error()
		} else {
			act.Success = true
		}
		res.ActionsApplied = append(res.ActionsApplied, act)
	}

	for _, ss := range res.SplitSuggestions {
		act := core.AdjustmentAction{Action: "split", Target: ss.ArticleID + "/" + ss.Section}
		if maxCount > 0 && len(*articles)+1 > maxCount {
			act.Detail = fmt.Sprintf("skipped: would exceed %d articles", maxCount)
		} else if err := applySplit(articles, ss.ArticleID, ss.Section); err != nil {
			act.Detail = err.Error()
		} else {
			act.Success = true
		}
		res.ActionsApplied = append(res.ActionsApplied, act)
	}

	res.Stats = stats(*articles)
	res.ReadabilityScore = a.readability(*articles)

	logger.Info("article set adjusted", "run_id", runID,
		"articles", res.Stats.Articles, "merges", len(res.MergeSuggestions),
		"splits", len(res.SplitSuggestions), "readability", res.ReadabilityScore)
	return res, nil
}

func (a *Adjuster) mergeSuggestions(articles []*core.Article) []core.MergeSuggestion {
	var small []*core.Article
	for _, art := range articles {
		if art.WordCount() < a.minArticleWords {
			small = append(small, art)
		}
	}
	if len(small) == 0 || len(articles) < 2 {
		return nil
	}
	// Pair each undersized article with its shortest sibling.
	var out []core.MergeSuggestion
	used := map[string]bool{}
	for _, s := range small {
		if used[s.ID] {
			continue
		}
		var partner *core.Article
		for _, art := range articles {
			if art.ID == s.ID || used[art.ID] {
				continue
			}
			if partner == nil || art.WordCount() < partner.WordCount() {
				partner = art
			}
		}
		if partner == nil {
			continue
		}
		used[s.ID], used[partner.ID] = true, true
		out = append(out, core.MergeSuggestion{
			ArticleIDs: []string{s.ID, partner.ID},
			Reason:     fmt.Sprintf("%s has %d words, below the %d-word floor", s.ID, s.WordCount(), a.minArticleWords),
		})
	}
	return out
}

func (a *Adjuster) splitSuggestions(articles []*core.Article) []core.SplitSuggestion {
	var out []core.SplitSuggestion
	for _, art := range articles {
		for _, heading := range sectionOrder(art.Markdown) {
			words := len(strings.Fields(sectionBody(art.Markdown, heading)))
			if words > a.maxSectionWords {
				out = append(out, core.SplitSuggestion{
					ArticleID: art.ID,
					Section:   heading,
					Reason:    fmt.Sprintf("section has %d words, above the %d-word ceiling", words, a.maxSectionWords),
				})
			}
		}
	}
	return out
}

// applyMerge folds the second article into the first and removes it from
// the set. Structural lists concatenate; the merged body carries both
// bodies under the surviving title.
func applyMerge(articles *[]*core.Article, ids []string) error {
	if len(ids) != 2 {
		return fmt.Errorf("merge wants exactly 2 articles, got %d", len(ids))
	}
	var dst, src *core.Article
	for _, art := range *articles {
		switch art.ID {
		case ids[0]:
			dst = art
		case ids[1]:
			src = art
		}
	}
	if dst == nil || src == nil {
		return fmt.Errorf("merge target missing from set")
	}

	dst.TOC = append(dst.TOC, src.TOC...)
	dst.FAQ = append(dst.FAQ, src.FAQ...)
	for _, l := range src.RelatedLinks {
		if l.Target != dst.ID {
			dst.RelatedLinks = append(dst.RelatedLinks, l)
		}
	}
	dst.Media = append(dst.Media, src.Media...)
	for heading, blocks := range src.Metadata.SectionBlockIDs {
		dst.Metadata.SectionBlockIDs[heading] = append(dst.Metadata.SectionBlockIDs[heading], blocks...)
	}
	dst.Markdown = strings.TrimSpace(dst.Markdown) + "\n\n" + demoteTitle(src.Markdown) + "\n"

	kept := (*articles)[:0]
	for _, art := range *articles {
		if art.ID != src.ID {
			kept = append(kept, art)
		}
	}
	*articles = kept

	// Repoint links that referenced the absorbed article.
	for _, art := range *articles {
		for i := range art.RelatedLinks {
			target, anchor, has := strings.Cut(art.RelatedLinks[i].Target, "#")
			if target == src.ID {
				if has {
					art.RelatedLinks[i].Target = dst.ID + "#" + anchor
				} else {
					art.RelatedLinks[i].Target = dst.ID
				}
			}
		}
	}
	return nil
}

// applySplit carves one section out of an article into a new sibling.
func applySplit(articles *[]*core.Article, articleID, heading string) error {
	var src *core.Article
	for _, art := range *articles {
		if art.ID == articleID {
			src = art
		}
	}
	if src == nil {
		return fmt.Errorf("article %s missing from set", articleID)
	}
	body := sectionBody(src.Markdown, heading)
	if body == "" {
		return fmt.Errorf("section %q missing from %s", heading, articleID)
	}

	newID := nextArticleID(*articles)
	split := &core.Article{
		ID:     newID,
		RunID:  src.RunID,
		Title:  heading,
		Intro:  fmt.Sprintf("This article covers %s, split out of %s.", heading, src.Title),
		Status: src.Status,
		TOC:    []core.TOCEntry{{Title: heading, Anchor: core.Anchor(heading)}},
		Metadata: core.ArticleMetadata{
			RunID:           src.Metadata.RunID,
			AnalysisID:      src.Metadata.AnalysisID,
			OutlineID:       src.Metadata.OutlineID,
			PrewriteID:      src.Metadata.PrewriteID,
			SectionBlockIDs: map[string][]string{heading: src.Metadata.SectionBlockIDs[heading]},
			Generator:       src.Metadata.Generator,
		},
		CreatedAt: time.Now().UTC(),
	}
	split.Markdown = fmt.Sprintf("# %s\n\n%s\n\n## %s\n\n%s\n", heading, split.Intro, heading, body)
	split.RelatedLinks = []core.RelatedLink{{Title: src.Title, Target: src.ID}}

	src.Markdown = removeSection(src.Markdown, heading)
	src.RelatedLinks = append(src.RelatedLinks, core.RelatedLink{Title: heading, Target: newID})
	kept := src.TOC[:0]
	for _, e := range src.TOC {
		if e.Title != heading {
			kept = append(kept, e)
		}
	}
	src.TOC = kept
	delete(src.Metadata.SectionBlockIDs, heading)

	*articles = append(*articles, split)
	return nil
}

func stats(articles []*core.Article) core.LengthStats {
	s := core.LengthStats{Articles: len(articles)}
	if len(articles) == 0 {
		return s
	}
	s.MinWords = articles[0].WordCount()
	for _, art := range articles {
		w := art.WordCount()
		s.TotalWords += w
		if w < s.MinWords {
			s.MinWords = w
		}
		if w > s.MaxWords {
			s.MaxWords = w
		}
	}
	s.MeanWords = float64(s.TotalWords) / float64(len(articles))
	return s
}

// readability scores the set by each article's distance from the optimal
// word band: 1.0 inside the band, decaying toward 0 as articles drift out.
func (a *Adjuster) readability(articles []*core.Article) float64 {
	if len(articles) == 0 {
		return 0
	}
	total := 0.0
	for _, art := range articles {
		w := art.WordCount()
		switch {
		case w >= a.optimalMin && w <= a.optimalMax:
			total += 1.0
		case w < a.optimalMin:
			total += float64(w) / float64(a.optimalMin)
		default:
			over := float64(w-a.optimalMax) / float64(a.optimalMax)
			score := 1.0 - over
			if score < 0 {
				score = 0
			}
			total += score
		}
	}
	return total / float64(len(articles))
}

func sectionOrder(md string) []string {
	var out []string
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "## ") {
			out = append(out, strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		}
	}
	return out
}

func sectionBody(md, heading string) string {
	var body []string
	in := false
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "## ") {
			if in {
				break
			}
			in = strings.TrimSpace(strings.TrimPrefix(line, "## ")) == heading
			continue
		}
		if in {
			body = append(body, line)
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

func removeSection(md, heading string) string {
	var out []string
	skipping := false
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "## ") {
			skipping = strings.TrimSpace(strings.TrimPrefix(line, "## ")) == heading
			if skipping {
				continue
			}
		}
		if !skipping {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

// demoteTitle rewrites an H1 into an H2 so a merged body nests under the
// surviving article's title.
func demoteTitle(md string) string {
	lines := strings.Split(strings.TrimSpace(md), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "# ") {
			lines[i] = "#" + line
			break
		}
	}
	return strings.Join(lines, "\n")
}

func nextArticleID(articles []*core.Article) string {
	max := 0
	for _, art := range articles {
		var n int
		if _, err := fmt.Sscanf(art.ID, "a-%02d", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("a-%02d", max+1)
}

// SortByID keeps output deterministic after merges and splits.
func SortByID(articles []*core.Article) {
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
}
