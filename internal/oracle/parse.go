package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CleanJSON extracts the JSON object or array from a model response. Chat
// providers habitually wrap output in markdown fences or lead with prose;
// everything outside the outermost JSON value is discarded.
func CleanJSON(raw json.RawMessage) (json.RawMessage, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON value in response")
	}
	var end int
	if text[start] == '{' {
		end = strings.LastIndex(text, "}")
	} else {
		end = strings.LastIndex(text, "]")
	}
	if end <= start {
		return nil, fmt.Errorf("unterminated JSON value in response")
	}
	text = text[start : end+1]

	if !gjson.Valid(text) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(text), nil
}
