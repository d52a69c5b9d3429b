package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"journalagent/llm"
	"journalagent/store"
)

func TestBuildIncludesToolsAndReferenceFormat(t *testing.T) {
	b := NewDefaultBuilder(nil, nil)
	out := b.Build(context.Background(), Input{
		CallerIdentity: "alice",
		Tools: []llm.ToolSchema{
			{Name: "web_search", Description: "Search the web.\nLong details."},
			{Name: "list_trades", Description: "List trades"},
		},
		Now: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})

	assert.Contains(t, out, "2026-03-02")
	assert.Contains(t, out, "- web_search: Search the web.")
	assert.NotContains(t, out, "Long details.")
	assert.Contains(t, out, `<trade-ref id="TRADE_ID"/>`)
	assert.NotContains(t, out, "{{")
	assert.NotContains(t, out, "<user_memory>")
}

func TestBuildInjectsMemory(t *testing.T) {
	s := store.NewMemStore()
	_, err := s.UpdateMemory(context.Background(), "alice", "Prefers swing trades")
	assert.NoError(t, err)
	b := NewDefaultBuilder(s, nil)

	tests := []struct {
		name   string
		caller string
		want   bool
	}{
		{"caller with memory", "alice", true},
		{"caller without memory", "bob", false},
		{"anonymous", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.Build(context.Background(), Input{CallerIdentity: tt.caller})
			assert.Equal(t, tt.want, strings.Contains(out, "Prefers swing trades"))
		})
	}
}
