package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"promptsupport/internal/core"
)

// blockSelector matches the elements that become content blocks, in
// document order.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, ul, ol, table, pre, blockquote"

// FromHTML extracts blocks from an HTML document. Boilerplate containers are
// stripped before traversal, matching what readers would consider content.
func FromHTML(docID string, data []byte) (*core.NormalizedDocument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse HTML for %s: %w", docID, err)
	}

	title := strings.TrimSpace(doc.Find("head title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	var blocks []core.ContentBlock
	doc.Find("body").Find(blockSelector).Each(func(i int, s *goquery.Selection) {
		// Nested block elements (a p inside a blockquote, a pre inside a
		// li) are covered by their outermost container.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}

		node := goquery.NodeName(s)
		text := normalizeSpace(s.Text())
		if node == "ul" || node == "ol" {
			text = listText(s)
		}
		if text == "" {
			return
		}

		b := core.ContentBlock{
			ID:      blockID(len(blocks) + 1),
			Content: text,
			Source:  core.Provenance{Line: i + 1},
		}
		switch node {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			b.Type = core.BlockHeading
			b.Level = int(node[1] - '0')
		case "ul", "ol":
			b.Type = core.BlockList
		case "table":
			b.Type = core.BlockTable
		case "pre":
			b.Type = core.BlockCode
			b.Content = strings.TrimRight(s.Text(), "\n")
		case "blockquote":
			b.Type = core.BlockQuote
		default:
			b.Type = core.BlockParagraph
		}
		blocks = append(blocks, b)
	})

	out := &core.NormalizedDocument{
		DocID:    docID,
		Title:    title,
		Language: "en",
		Blocks:   blocks,
	}
	out.WordCount = countWords(blocks)
	return out, nil
}

func listText(s *goquery.Selection) string {
	var items []string
	s.Find("li").Each(func(_ int, li *goquery.Selection) {
		if t := normalizeSpace(li.Text()); t != "" {
			items = append(items, "- "+t)
		}
	})
	return strings.Join(items, "\n")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
