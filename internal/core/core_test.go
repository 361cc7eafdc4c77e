package core

import (
	"reflect"
	"sort"
	"testing"
)

func TestGranularityArticleRange(t *testing.T) {
	testCases := []struct {
		granularity Granularity
		wantMin     int
		wantMax     int
	}{
		{GranularityUnified, 1, 1},
		{GranularityShallow, 3, 3},
		{GranularityModerate, 4, 6},
		{GranularityDeep, 7, 0},
		{Granularity("bogus"), 1, 1},
	}

	for _, tc := range testCases {
		min, max := tc.granularity.ArticleRange()
		if min != tc.wantMin || max != tc.wantMax {
			t.Errorf("ArticleRange(%s) = (%d, %d), want (%d, %d)",
				tc.granularity, min, max, tc.wantMin, tc.wantMax)
		}
	}
}

func TestGranularityValid(t *testing.T) {
	for _, g := range []Granularity{GranularityUnified, GranularityShallow, GranularityModerate, GranularityDeep} {
		if !g.Valid() {
			t.Errorf("Expected %s to be valid", g)
		}
	}
	if Granularity("medium").Valid() {
		t.Error("Expected 'medium' to be invalid")
	}
}

func TestDiscardReasonValid(t *testing.T) {
	for _, r := range []DiscardReason{DiscardDuplicate, DiscardBoilerplate, DiscardJunk} {
		if !r.Valid() {
			t.Errorf("Expected %s to be valid", r)
		}
	}
	if DiscardReason("irrelevant").Valid() {
		t.Error("Expected 'irrelevant' to be invalid")
	}
}

func TestGlobalOutlineAssignments(t *testing.T) {
	outline := GlobalOutline{
		Articles: []ArticlePlan{
			{ArticleID: "a1", BlockIDs: []string{"b1", "b2"}},
			{ArticleID: "a2", BlockIDs: []string{"b3"}},
		},
		Discarded: []DiscardedBlock{{BlockID: "b4", Reason: DiscardJunk}},
	}

	assignments := outline.Assignments()
	if len(assignments) != 3 {
		t.Fatalf("Expected 3 assignments, got %d", len(assignments))
	}
	if assignments["b1"] != "a1" || assignments["b2"] != "a1" {
		t.Errorf("Expected b1 and b2 assigned to a1, got %v", assignments)
	}
	if assignments["b3"] != "a2" {
		t.Errorf("Expected b3 assigned to a2, got %s", assignments["b3"])
	}
	if _, found := assignments["b4"]; found {
		t.Error("Discarded block b4 should not appear in assignments")
	}
}

func TestArticleOutlineBlockIDs(t *testing.T) {
	outline := ArticleOutline{
		Sections: []Section{
			{Heading: "Setup", BlockIDs: []string{"b1"}},
			{
				Heading:  "Usage",
				BlockIDs: []string{"b2"},
				Subsections: []Subsection{
					{Heading: "Advanced", BlockIDs: []string{"b3", "b4"}},
				},
			},
		},
	}

	got := outline.BlockIDs()
	want := []string{"b1", "b2", "b3", "b4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BlockIDs() = %v, want %v", got, want)
	}
}

func TestDocumentBlockByID(t *testing.T) {
	doc := NormalizedDocument{
		DocID: "d1",
		Blocks: []ContentBlock{
			{ID: "b1", Type: BlockHeading, Content: "Intro", Level: 1},
			{ID: "b2", Type: BlockParagraph, Content: "Some text"},
		},
	}

	if b := doc.BlockByID("b2"); b == nil || b.Content != "Some text" {
		t.Errorf("BlockByID(b2) = %v, want the paragraph block", b)
	}
	if b := doc.BlockByID("missing"); b != nil {
		t.Errorf("BlockByID(missing) = %v, want nil", b)
	}
}

func TestArticleMetadataSourceBlockIDs(t *testing.T) {
	meta := ArticleMetadata{
		SectionBlockIDs: map[string][]string{
			"setup": {"b1", "b2"},
			"usage": {"b2", "b3"},
		},
	}

	ids := meta.SourceBlockIDs()
	sort.Strings(ids)
	want := []string{"b1", "b2", "b3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("SourceBlockIDs() = %v, want %v (deduplicated)", ids, want)
	}
}

func TestAnchor(t *testing.T) {
	testCases := []struct {
		heading string
		want    string
	}{
		{"Getting Started", "getting-started"},
		{"API Keys & Tokens", "api-keys--tokens"},
		{"  Trim Me  ", "trim-me"},
		{"FAQ", "faq"},
	}

	for _, tc := range testCases {
		if got := Anchor(tc.heading); got != tc.want {
			t.Errorf("Anchor(%q) = %q, want %q", tc.heading, got, tc.want)
		}
	}
}

func TestArticleWordCount(t *testing.T) {
	article := Article{Markdown: "one two three\nfour five"}
	if got := article.WordCount(); got != 5 {
		t.Errorf("WordCount() = %d, want 5", got)
	}
}
