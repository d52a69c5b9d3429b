package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultLargeToolOutputThreshold is the character count above which a
// tool output is cut before it is fed back to the model.
const DefaultLargeToolOutputThreshold = 20000

// ToolOutputHandler caps large tool outputs. A zero or negative threshold
// disables it.
type ToolOutputHandler struct {
	Threshold int
}

// NewToolOutputHandler creates a handler with the given threshold.
func NewToolOutputHandler(threshold int) *ToolOutputHandler {
	return &ToolOutputHandler{Threshold: threshold}
}

// IsLargeToolOutput reports whether content exceeds the threshold.
func (h *ToolOutputHandler) IsLargeToolOutput(content string) bool {
	return h != nil && h.Threshold > 0 && len(content) > h.Threshold
}

// Limit returns content unchanged when it is small, otherwise its first
// half-threshold characters followed by a note telling the model the
// output was cut.
func (h *ToolOutputHandler) Limit(toolName, content string) (string, bool) {
	if !h.IsLargeToolOutput(content) {
		return content, false
	}
	preview := ExtractFirstNCharacters(content, h.Threshold/2)
	kind := "text"
	if isJSONContent(content) {
		kind = "JSON"
	}
	return fmt.Sprintf(`%s

[Output of %s truncated: showing the first %d of %d characters of %s. `+
		`If you need more, call the tool again with narrower arguments such as a shorter date range or a filter.]`,
		preview, toolName, len(preview), len(content), kind), true
}

// ExtractFirstNCharacters returns at most n bytes of content, never
// splitting a UTF-8 sequence.
func ExtractFirstNCharacters(content string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(content) <= n {
		return content
	}
	for n > 0 && !utf8.RuneStart(content[n]) {
		n--
	}
	return content[:n]
}

func isJSONContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return false
	}
	return json.Valid([]byte(trimmed))
}
