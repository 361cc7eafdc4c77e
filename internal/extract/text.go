package extract

import (
	"bufio"
	"bytes"
	"strings"

	"promptsupport/internal/core"
)

// FromText extracts blocks from markdown or plain text. Lines are grouped
// into paragraphs, lists, fenced code, tables, and quotes; provenance is the
// 1-based line number the block starts on.
func FromText(docID string, data []byte) (*core.NormalizedDocument, error) {
	var (
		blocks []core.ContentBlock
		title  string

		buf       []string
		bufType   core.BlockType
		bufLine   int
		inFence   bool
		fenceLine int
		fence     []string
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		blocks = append(blocks, core.ContentBlock{
			ID:      blockID(len(blocks) + 1),
			Type:    bufType,
			Content: strings.Join(buf, "\n"),
			Source:  core.Provenance{Line: bufLine},
		})
		buf = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				blocks = append(blocks, core.ContentBlock{
					ID:      blockID(len(blocks) + 1),
					Type:    core.BlockCode,
					Content: strings.Join(fence, "\n"),
					Source:  core.Provenance{Line: fenceLine},
				})
				fence = nil
				continue
			}
			fence = append(fence, line)
			continue
		}

		switch {
		case trimmed == "":
			flush()

		case strings.HasPrefix(trimmed, "```"):
			flush()
			inFence = true
			fenceLine = lineNo

		case strings.HasPrefix(trimmed, "#"):
			flush()
			level := 0
			for level < len(trimmed) && trimmed[level] == '#' {
				level++
			}
			text := strings.TrimSpace(trimmed[level:])
			if text == "" {
				continue
			}
			if level > 6 {
				level = 6
			}
			if title == "" && level == 1 {
				title = text
			}
			blocks = append(blocks, core.ContentBlock{
				ID:      blockID(len(blocks) + 1),
				Type:    core.BlockHeading,
				Content: text,
				Level:   level,
				Source:  core.Provenance{Line: lineNo},
			})

		case isListLine(trimmed):
			if bufType != core.BlockList || len(buf) == 0 {
				flush()
				bufType = core.BlockList
				bufLine = lineNo
			}
			buf = append(buf, trimmed)

		case strings.HasPrefix(trimmed, "|"):
			if bufType != core.BlockTable || len(buf) == 0 {
				flush()
				bufType = core.BlockTable
				bufLine = lineNo
			}
			buf = append(buf, trimmed)

		case strings.HasPrefix(trimmed, ">"):
			if bufType != core.BlockQuote || len(buf) == 0 {
				flush()
				bufType = core.BlockQuote
				bufLine = lineNo
			}
			buf = append(buf, strings.TrimSpace(strings.TrimPrefix(trimmed, ">")))

		default:
			if bufType != core.BlockParagraph || len(buf) == 0 {
				flush()
				bufType = core.BlockParagraph
				bufLine = lineNo
			}
			buf = append(buf, trimmed)
		}
	}
	flush()
	if inFence && len(fence) > 0 {
		// Unterminated fence at EOF still counts as a code block.
		blocks = append(blocks, core.ContentBlock{
			ID:      blockID(len(blocks) + 1),
			Type:    core.BlockCode,
			Content: strings.Join(fence, "\n"),
			Source:  core.Provenance{Line: fenceLine},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := &core.NormalizedDocument{
		DocID:    docID,
		Title:    title,
		Language: "en",
		Blocks:   blocks,
	}
	out.WordCount = countWords(blocks)
	return out, nil
}

func isListLine(s string) bool {
	if strings.HasPrefix(s, "- ") || strings.HasPrefix(s, "* ") || strings.HasPrefix(s, "+ ") {
		return true
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') && i+1 < len(s) && s[i+1] == ' '
}
