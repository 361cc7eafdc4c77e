package adjust

import (
	"fmt"
	"strings"
	"testing"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
)

func articleOfWords(id string, words int) *core.Article {
	body := strings.TrimSpace(strings.Repeat("word ", words-10))
	md := fmt.Sprintf("# Title %s\n\nShort intro for this one.\n\n## Main\n\n%s\n", id, body)
	return &core.Article{
		ID:       id,
		Title:    "Title " + id,
		Intro:    "Short intro for this one.",
		TOC:      []core.TOCEntry{{Title: "Main", Anchor: "main"}},
		Markdown: md,
		Metadata: core.ArticleMetadata{SectionBlockIDs: map[string][]string{"Main": {"b-0001"}}},
	}
}

func TestMergeUndersizedArticle(t *testing.T) {
	articles := []*core.Article{
		articleOfWords("a-01", 100), // below the 300 floor
		articleOfWords("a-02", 800),
		articleOfWords("a-03", 900),
	}
	a := New(config.Adjuster{})
	res, err := a.Adjust("run-1", &articles, core.GranularityUnified) // unbounded shrink not allowed below 1
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MergeSuggestions) != 1 {
		t.Fatalf("merge suggestions = %+v", res.MergeSuggestions)
	}
	if len(articles) != 2 {
		t.Fatalf("articles after merge = %d, want 2", len(articles))
	}
	for _, art := range articles {
		if art.ID == "a-01" {
			if !strings.Contains(art.Markdown, "## Title a-02") {
				t.Errorf("merged body missing demoted title:\n%s", art.Markdown)
			}
		}
	}
	if !res.ActionsApplied[0].Success {
		t.Errorf("merge action not applied: %+v", res.ActionsApplied[0])
	}
}

func TestMergeSkippedWhenBandWouldBreak(t *testing.T) {
	articles := []*core.Article{
		articleOfWords("a-01", 100),
		articleOfWords("a-02", 800),
		articleOfWords("a-03", 900),
	}
	a := New(config.Adjuster{})
	// Shallow requires exactly 3 articles: a merge would leave 2.
	res, err := a.Adjust("run-1", &articles, core.GranularityShallow)
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 3 {
		t.Errorf("merge applied despite band: %d articles", len(articles))
	}
	if len(res.ActionsApplied) == 0 || res.ActionsApplied[0].Success {
		t.Errorf("expected recorded skip: %+v", res.ActionsApplied)
	}
	if !strings.Contains(res.ActionsApplied[0].Detail, "below") {
		t.Errorf("skip detail = %q", res.ActionsApplied[0].Detail)
	}
}

func TestSplitOversizedSection(t *testing.T) {
	big := articleOfWords("a-01", 2000) // Main section ~1990 words > 1200
	articles := []*core.Article{big, articleOfWords("a-02", 800), articleOfWords("a-03", 700), articleOfWords("a-04", 600)}

	a := New(config.Adjuster{})
	res, err := a.Adjust("run-1", &articles, core.GranularityModerate) // 4-6 band, split allowed
	if err != nil {
		t.Fatal(err)
	}
	if len(res.SplitSuggestions) != 1 || res.SplitSuggestions[0].ArticleID != "a-01" {
		t.Fatalf("split suggestions = %+v", res.SplitSuggestions)
	}
	if len(articles) != 5 {
		t.Fatalf("articles after split = %d, want 5", len(articles))
	}

	var split *core.Article
	for _, art := range articles {
		if art.ID == "a-05" {
			split = art
		}
	}
	if split == nil {
		t.Fatal("split article a-05 not created")
	}
	if len(split.RelatedLinks) != 1 || split.RelatedLinks[0].Target != "a-01" {
		t.Errorf("split article should link back: %+v", split.RelatedLinks)
	}
	if strings.Contains(big.Markdown, "## Main") {
		t.Error("source article still contains the split section")
	}
}

func TestSplitSkippedAtBandCeiling(t *testing.T) {
	articles := []*core.Article{
		articleOfWords("a-01", 2000),
		articleOfWords("a-02", 800),
		articleOfWords("a-03", 700),
	}
	a := New(config.Adjuster{})
	res, err := a.Adjust("run-1", &articles, core.GranularityShallow) // exactly 3
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 3 {
		t.Errorf("split applied despite ceiling: %d articles", len(articles))
	}
	found := false
	for _, act := range res.ActionsApplied {
		if act.Action == "split" && !act.Success && strings.Contains(act.Detail, "exceed") {
			found = true
		}
	}
	if !found {
		t.Errorf("no recorded split skip: %+v", res.ActionsApplied)
	}
}

func TestReadabilityScore(t *testing.T) {
	a := New(config.Adjuster{})
	inBand := []*core.Article{articleOfWords("a-01", 1000)}
	if got := a.readability(inBand); got != 1.0 {
		t.Errorf("in-band readability = %v, want 1", got)
	}
	tiny := []*core.Article{articleOfWords("a-01", 100)}
	if got := a.readability(tiny); got >= 1.0 || got <= 0 {
		t.Errorf("undersized readability = %v, want in (0,1)", got)
	}
}

func TestStats(t *testing.T) {
	articles := []*core.Article{articleOfWords("a-01", 500), articleOfWords("a-02", 1500)}
	a := New(config.Adjuster{})
	res, err := a.Adjust("run-1", &articles, core.GranularityUnified)
	if err != nil {
		t.Fatal(err)
	}
	s := res.Stats
	if s.Articles != 2 || s.MinWords >= s.MaxWords || s.MeanWords == 0 {
		t.Errorf("stats = %+v", s)
	}
}
