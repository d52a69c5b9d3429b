package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalagent/llm"
	"journalagent/tools"
)

func TestToolOutputHandlerLimit(t *testing.T) {
	h := NewToolOutputHandler(100)

	out, cut := h.Limit("list_trades", "short")
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	big := "[" + strings.Repeat(`{"id":"T1"},`, 20) + `{"id":"T2"}]`
	out, cut = h.Limit("list_trades", big)
	require.True(t, cut)
	assert.True(t, strings.HasPrefix(out, big[:50]))
	assert.Contains(t, out, "Output of list_trades truncated")
	assert.Contains(t, out, "of JSON")

	var nilHandler *ToolOutputHandler
	out, cut = nilHandler.Limit("x", big)
	assert.False(t, cut)
	assert.Equal(t, big, out)

	assert.False(t, NewToolOutputHandler(0).IsLargeToolOutput(big), "zero disables")
}

func TestExtractFirstNCharactersKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 10) // two bytes each
	assert.Equal(t, strings.Repeat("é", 2), ExtractFirstNCharacters(s, 5))
	assert.Equal(t, s, ExtractFirstNCharacters(s, 100))
	assert.Equal(t, "", ExtractFirstNCharacters(s, 0))
}

func TestTruncateStringKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"prix: 12€ net", 10, "prix: 12..."},
		{strings.Repeat("é", 4), 3, "é..."},
	}
	for _, tt := range tests {
		out := TruncateString(tt.in, tt.max)
		assert.Equal(t, tt.want, out)
		assert.True(t, utf8.ValidString(out), tt.in)
	}
}

func resultMessage(name, output string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Parts: []llm.Part{{ToolResult: &llm.ToolResult{Name: name, Output: output, Succeeded: true}}}}
}

func TestCompactStaleToolResults(t *testing.T) {
	large := strings.Repeat("x", 800)
	transcript := []llm.Message{
		llm.TextMessage(llm.RoleUser, "question"),
		resultMessage("list_trades", large),
		llm.TextMessage(llm.RoleModel, "thinking"),
		resultMessage("get_stock_price", "small"),
		resultMessage("list_notes", large),
		resultMessage("list_trades", large),
	}

	view, n := compactStaleToolResults(transcript, 2, 100)
	assert.Equal(t, 1, n, "only the large result older than two rounds")

	got := toolResults(view[1])[0]
	assert.True(t, strings.HasPrefix(got.Output, compactedMarker))
	assert.Contains(t, got.Output, "300 characters omitted")
	assert.Equal(t, "list_trades", got.Name)
	assert.Equal(t, large, toolResults(transcript[1])[0].Output, "input left untouched")

	assert.Equal(t, "small", toolResults(view[3])[0].Output)
	assert.Equal(t, large, toolResults(view[4])[0].Output)
	assert.Equal(t, large, toolResults(view[5])[0].Output)

	_, n = compactStaleToolResults(view, 2, 100)
	assert.Zero(t, n, "already compacted")
	_, n = compactStaleToolResults(transcript, 0, 100)
	assert.Zero(t, n, "disabled")
}

func TestCompactionNeverGrowsOutput(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		threshold int
		compacted bool
	}{
		{"below preview length", strings.Repeat("y", 100), 10, false},
		{"at preview length", strings.Repeat("y", compactedPreviewLength), 10, false},
		{"above preview length", strings.Repeat("y", 1000), 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript := []llm.Message{resultMessage("list_trades", tt.output), resultMessage("list_trades", "recent")}
			view, n := compactStaleToolResults(transcript, 1, tt.threshold)
			out := toolResults(view[0])[0].Output
			if !tt.compacted {
				assert.Zero(t, n)
				assert.Equal(t, tt.output, out)
				return
			}
			assert.Equal(t, 1, n)
			assert.Less(t, len(out), len(tt.output))
			assert.Contains(t, out, "500 characters omitted")
		})
	}
}

func TestRequestCompactsWithoutTouchingTranscript(t *testing.T) {
	a := newTestAgent(t, script(), toolSet(nil), WithContextEditing(1, 10))
	em, _ := newEmitter()
	req := baseRequest()
	var meta Metadata
	conv := a.newConversation(&req, toolSet(nil).ts, "system", em, &meta)

	full := strings.Repeat("0123456789", 100)
	conv.transcript = append(conv.transcript,
		resultMessage("list_trades", full),
		resultMessage("list_trades", full),
		resultMessage("list_trades", full),
	)
	first := len(conv.transcript) - 3

	msgs := conv.request(nil, llm.ToolChoiceNone).Messages
	assert.True(t, strings.HasPrefix(toolResults(msgs[first])[0].Output, compactedMarker))
	assert.Equal(t, full, toolResults(msgs[first+2])[0].Output)
	for i := first; i < len(conv.transcript); i++ {
		assert.Equal(t, full, toolResults(conv.transcript[i])[0].Output, "transcript entry %d", i)
	}
	assert.Equal(t, 2, meta.CompactedResults)

	conv.request(nil, llm.ToolChoiceNone)
	assert.Equal(t, 2, meta.CompactedResults, "counted once across requests")
}

func TestRunCompactsAndLimitsToolOutput(t *testing.T) {
	big := newFuncTool("list_trades", func(args map[string]any, _ tools.Context) tools.Result {
		return tools.Result{Text: strings.Repeat("trade ", 1000)}
	})
	model := script(
		calls(call("c1", "list_trades", map[string]any{"month": "may"})),
		calls(call("c2", "list_trades", map[string]any{"month": "june"})),
		text("June was better than May."),
	)
	a := newTestAgent(t, model, toolSet([]tools.Tool{big}),
		WithToolOutputLimit(2000), WithContextEditing(1, 500))
	em, _ := newEmitter()

	out, err := a.Run(ctx, Request{Message: "compare may and june", CallerIdentity: "alice"}, em)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Metadata.CompactedResults)

	rec := model.recorded()
	require.Len(t, rec, 3)
	first := toolResults(lastMessage(rec[1]))
	require.Len(t, first, 1)
	assert.Contains(t, first[0].Output, "truncated")
	assert.Less(t, len(first[0].Output), 1500)

	var compacted int
	for _, m := range rec[2].messages {
		for _, r := range toolResults(m) {
			if strings.HasPrefix(r.Output, compactedMarker) {
				compacted++
			}
		}
	}
	assert.Equal(t, 1, compacted)
}
