// context_editing.go
//
// Compaction of stale tool results. A run can call tools for up to fifteen
// turns and journal queries return large payloads, so results that are
// both old and large are replaced by a short preview in what is sent to
// the model. The transcript keeps the full text, and the most recent
// results are always sent whole.

package agent

import (
	"fmt"

	"journalagent/llm"
)

const (
	// DefaultContextEditingThreshold is the output size in characters above
	// which an old tool result is compacted.
	DefaultContextEditingThreshold = 4000

	// DefaultContextEditingTurnThreshold is how many tool rounds a result
	// survives intact.
	DefaultContextEditingTurnThreshold = 6

	compactedPreviewLength = 500
	compactedMarker        = "[compacted]"
)

// compactStaleToolResults returns a view of transcript in which tool
// results more than turnThreshold tool rounds old and longer than threshold
// characters are replaced by a preview. transcript itself is never
// modified; when nothing qualifies it is returned as is. The second result
// is the number of compacted results in the view.
func compactStaleToolResults(transcript []llm.Message, turnThreshold, threshold int) ([]llm.Message, int) {
	if turnThreshold <= 0 || threshold <= 0 {
		return transcript, 0
	}
	if threshold < compactedPreviewLength {
		threshold = compactedPreviewLength
	}
	view := transcript
	copied := false
	compacted, age := 0, 0
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if !hasToolResults(msg) {
			continue
		}
		age++
		if age <= turnThreshold {
			continue
		}
		var parts []llm.Part
		for j, p := range msg.Parts {
			if p.ToolResult == nil || len(p.ToolResult.Output) <= threshold || isCompactedContent(p.ToolResult.Output) {
				continue
			}
			if parts == nil {
				parts = append([]llm.Part(nil), msg.Parts...)
			}
			r := *p.ToolResult
			r.Output = fmt.Sprintf("%s %s\n... (%d characters omitted from an earlier %s result; call the tool again if you need them)",
				compactedMarker, ExtractFirstNCharacters(r.Output, compactedPreviewLength), len(r.Output)-compactedPreviewLength, r.Name)
			parts[j] = llm.Part{ToolResult: &r}
			compacted++
		}
		if parts == nil {
			continue
		}
		if !copied {
			view = append([]llm.Message(nil), transcript...)
			copied = true
		}
		view[i] = llm.Message{Role: msg.Role, Parts: parts}
	}
	return view, compacted
}

func hasToolResults(m llm.Message) bool {
	for _, p := range m.Parts {
		if p.ToolResult != nil {
			return true
		}
	}
	return false
}

func isCompactedContent(content string) bool {
	return len(content) >= len(compactedMarker) && content[:len(compactedMarker)] == compactedMarker
}
