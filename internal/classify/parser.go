package classify

import (
	"fmt"
	"strings"
)

// ExtractJSON prepares raw model output for decoding: optional markdown
// code fences are stripped, then the text is cut down to start at the first
// '{' or '[' so that any prose preamble is discarded.
func ExtractJSON(text string) (string, error) {
	text = stripCodeFence(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON object or array in response")
	}

	return text[start:], nil
}

// stripCodeFence removes a wrapping ```json ... ``` block if present.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
