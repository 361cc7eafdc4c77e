package extract

import (
	"strings"
	"testing"

	"promptsupport/internal/core"
)

func TestFromTextMarkdown(t *testing.T) {
	src := `# Getting Started

Welcome to the product guide.

## Install

- Download the binary
- Run the installer

` + "```" + `
make install
` + "```" + `

> Installation requires admin rights.
`
	doc, err := FromText("guide", []byte(src))
	if err != nil {
		t.Fatalf("FromText: %v", err)
	}
	if doc.Title != "Getting Started" {
		t.Errorf("title = %q, want Getting Started", doc.Title)
	}

	wantTypes := []core.BlockType{
		core.BlockHeading,
		core.BlockParagraph,
		core.BlockHeading,
		core.BlockList,
		core.BlockCode,
		core.BlockQuote,
	}
	if len(doc.Blocks) != len(wantTypes) {
		t.Fatalf("got %d blocks, want %d: %+v", len(doc.Blocks), len(wantTypes), doc.Blocks)
	}
	for i, want := range wantTypes {
		if doc.Blocks[i].Type != want {
			t.Errorf("block %d type = %s, want %s", i, doc.Blocks[i].Type, want)
		}
	}

	if doc.Blocks[0].Level != 1 || doc.Blocks[2].Level != 2 {
		t.Errorf("heading levels = %d, %d, want 1, 2", doc.Blocks[0].Level, doc.Blocks[2].Level)
	}
	if doc.Blocks[4].Content != "make install" {
		t.Errorf("code content = %q", doc.Blocks[4].Content)
	}
	if doc.WordCount == 0 {
		t.Error("word count not computed")
	}
}

func TestFromTextDeterministicIDs(t *testing.T) {
	src := "# A\n\nfirst\n\nsecond\n"
	a, err := FromText("d", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromText("d", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(a.Blocks))
	}
	for i := range a.Blocks {
		if a.Blocks[i].ID != b.Blocks[i].ID {
			t.Errorf("block %d ID not stable: %q vs %q", i, a.Blocks[i].ID, b.Blocks[i].ID)
		}
	}
	if a.Blocks[0].ID != "b-0001" {
		t.Errorf("first block ID = %q, want b-0001", a.Blocks[0].ID)
	}
}

func TestFromTextUniqueIDs(t *testing.T) {
	src := strings.Repeat("para\n\n", 50)
	doc, err := FromText("d", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, b := range doc.Blocks {
		if seen[b.ID] {
			t.Fatalf("duplicate block ID %q", b.ID)
		}
		seen[b.ID] = true
	}
}

func TestFromHTML(t *testing.T) {
	src := `<html><head><title>Admin Guide</title></head><body>
<nav>skip me</nav>
<h1>Admin Guide</h1>
<p>Manage your   deployment.</p>
<h2>Users</h2>
<ul><li>Add user</li><li>Remove user</li></ul>
<pre>kubectl get pods</pre>
<blockquote><p>Back up first.</p></blockquote>
<footer>copyright</footer>
</body></html>`

	doc, err := FromHTML("admin", []byte(src))
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if doc.Title != "Admin Guide" {
		t.Errorf("title = %q", doc.Title)
	}

	wantTypes := []core.BlockType{
		core.BlockHeading,
		core.BlockParagraph,
		core.BlockHeading,
		core.BlockList,
		core.BlockCode,
		core.BlockQuote,
	}
	if len(doc.Blocks) != len(wantTypes) {
		t.Fatalf("got %d blocks, want %d: %+v", len(doc.Blocks), len(wantTypes), doc.Blocks)
	}
	for i, want := range wantTypes {
		if doc.Blocks[i].Type != want {
			t.Errorf("block %d type = %s, want %s", i, doc.Blocks[i].Type, want)
		}
	}

	if doc.Blocks[1].Content != "Manage your deployment." {
		t.Errorf("paragraph content = %q, want collapsed whitespace", doc.Blocks[1].Content)
	}
	if !strings.Contains(doc.Blocks[3].Content, "- Add user") {
		t.Errorf("list content = %q", doc.Blocks[3].Content)
	}
	for _, b := range doc.Blocks {
		if strings.Contains(b.Content, "skip me") || strings.Contains(b.Content, "copyright") {
			t.Errorf("boilerplate leaked into block %s: %q", b.ID, b.Content)
		}
	}
}

func TestFromFileDispatch(t *testing.T) {
	htmlDoc, err := FromFile("manual.html", []byte("<html><body><p>hi there</p></body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if htmlDoc.DocID != "manual" {
		t.Errorf("doc ID = %q, want manual", htmlDoc.DocID)
	}

	textDoc, err := FromFile("User Manual.md", []byte("# T\n\nbody\n"))
	if err != nil {
		t.Fatal(err)
	}
	if textDoc.DocID != "user-manual" {
		t.Errorf("doc ID = %q, want user-manual", textDoc.DocID)
	}
}
