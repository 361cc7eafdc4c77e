package generate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"promptsupport/internal/core"
	"promptsupport/internal/oracle"
)

func draftInput() Input {
	outline := &core.ArticleOutline{
		ArticleID: "a-01",
		Title:     "Agent Setup",
		Sections: []core.Section{
			{Heading: "Install", BlockIDs: []string{"b-0001", "b-0002"}},
			{Heading: "Configure", BlockIDs: []string{"b-0003"}},
		},
		FAQSuggestions: []string{"How do I install the agent?", "Which port does the agent use?", "Can I run two agents?"},
		RelatedLinks:   []string{"Troubleshooting"},
	}
	pre := &core.PrewriteData{
		ArticleID: "a-01",
		Sections: []core.PrewriteSection{
			{
				Heading: "Install",
				Facts: []core.Fact{
					{Text: "The agent installs with a single command", EvidenceBlockIDs: []string{"b-0001"}},
					{Text: "Installation requires root access", EvidenceBlockIDs: []string{"b-0002"}},
				},
				MustIncludeExamples: []string{"agent install --yes"},
			},
			{
				Heading: "Configure",
				Facts: []core.Fact{
					{Text: "The default port is 8080", EvidenceBlockIDs: []string{"b-0003"}},
				},
			},
		},
	}
	return Input{
		RunID:        "run-1",
		AnalysisID:   "an-1",
		OutlineID:    "ol-1",
		PrewriteID:   "pw-1",
		Outline:      outline,
		Prewrite:     pre,
		ArticleIndex: map[string]string{"a-01": "Agent Setup", "a-02": "Agent Troubleshooting"},
	}
}

func TestGenerateFallbackTemplate(t *testing.T) {
	g := NewGenerator(nil)
	art, err := g.Generate(context.Background(), draftInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	md := art.Markdown
	for _, want := range []string{
		"# Agent Setup",
		"**In this article**",
		"- [Install](#install)",
		"- [Configure](#configure)",
		"## Install",
		"## Configure",
		"```\nagent install --yes\n```",
		"## Frequently Asked Questions",
		"## Related Articles",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	if len(art.FAQ) < 3 {
		t.Errorf("FAQ has %d entries, want >= 3", len(art.FAQ))
	}
	for _, f := range art.FAQ {
		if f.Answer == "" {
			t.Errorf("FAQ %q has empty answer", f.Question)
		}
	}

	if len(art.RelatedLinks) != 1 || art.RelatedLinks[0].Target != "a-02" {
		t.Errorf("related links = %+v, want resolved a-02", art.RelatedLinks)
	}

	if art.Status != core.StatusDraft {
		t.Errorf("status = %s", art.Status)
	}
	if art.Metadata.Generator != "heuristic" {
		t.Errorf("generator = %q", art.Metadata.Generator)
	}
	if !strings.Contains(art.HTML, "<h1") || !strings.Contains(art.HTML, "Agent Setup") {
		t.Errorf("HTML not rendered: %s", art.HTML)
	}
}

func TestGenerateProvenanceMetadata(t *testing.T) {
	g := NewGenerator(nil)
	art, err := g.Generate(context.Background(), draftInput())
	if err != nil {
		t.Fatal(err)
	}
	if art.Metadata.AnalysisID != "an-1" || art.Metadata.OutlineID != "ol-1" || art.Metadata.PrewriteID != "pw-1" {
		t.Errorf("provenance chain incomplete: %+v", art.Metadata)
	}
	got := art.Metadata.SectionBlockIDs["Install"]
	if len(got) != 2 || got[0] != "b-0001" {
		t.Errorf("section block ids = %v", got)
	}
}

func TestGenerateUsesOracleProse(t *testing.T) {
	stub := &oracle.Stub{Responses: map[string]json.RawMessage{
		"generation": json.RawMessage(`{
			"intro":"Set up the agent in minutes.",
			"sections":[
				{"heading":"Install","prose":"Run the installer with root access."},
				{"heading":"Configure","prose":"The agent listens on port 8080 by default."}
			],
			"faq":[
				{"question":"How do I install the agent?","answer":"Run the single install command as root."},
				{"question":"Which port does the agent use?","answer":"Port 8080 by default."},
				{"question":"Do I need root?","answer":"Yes, installation requires root access."}
			]
		}`),
	}}
	g := NewGenerator(oracle.NewChain(time.Second, stub))

	art, err := g.Generate(context.Background(), draftInput())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if art.Metadata.Generator != "oracle" {
		t.Errorf("generator = %q", art.Metadata.Generator)
	}
	if art.Intro != "Set up the agent in minutes." {
		t.Errorf("intro = %q", art.Intro)
	}
	if !strings.Contains(art.Markdown, "Run the installer with root access.") {
		t.Errorf("oracle prose missing:\n%s", art.Markdown)
	}
	if !strings.Contains(art.Markdown, "agent install --yes") {
		t.Error("must-include example dropped from oracle draft")
	}
	if len(art.FAQ) != 3 {
		t.Errorf("FAQ = %d entries", len(art.FAQ))
	}
}

func TestResolveRelatedDropsUnresolvable(t *testing.T) {
	got := resolveRelated([]string{"Troubleshooting", "Unrelated Topic"}, "a-01",
		map[string]string{"a-01": "Setup", "a-02": "Agent Troubleshooting"})
	if len(got) != 1 || got[0].Target != "a-02" {
		t.Errorf("resolveRelated = %+v", got)
	}
}

func TestGenerateMediaByReference(t *testing.T) {
	in := draftInput()
	in.Media = []core.MediaRef{{ID: "m-1", URL: "media/m-1.png", AltText: "Dashboard"}}
	g := NewGenerator(nil)
	art, err := g.Generate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(art.Markdown, "![Dashboard](media/m-1.png)") {
		t.Errorf("media reference missing:\n%s", art.Markdown)
	}
}
