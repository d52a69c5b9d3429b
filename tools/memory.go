package tools

import (
	"context"
	"strings"

	"journalagent/store"
)

// MemoryName is the tool name exposed to the model.
const MemoryName = "update_memory"

type memoryArgs struct {
	Content string `json:"content" jsonschema:"what to remember about the user"`
	Mode    string `json:"mode,omitempty" jsonschema:"append to or replace the existing memory, default append"`
}

// NewMemory creates the update_memory tool.
func NewMemory(mem store.MemoryStore) (Tool, error) {
	return newTool(MemoryName,
		"Remember durable facts about the user (trading style, goals, rules, preferences) for future conversations.",
		map[string][]string{"mode": {"append", "replace"}},
		func(ctx context.Context, a memoryArgs, tc Context) Result {
			if tc.CallerIdentity == "" {
				return Failure("no caller identity")
			}
			content := strings.TrimSpace(a.Content)
			if content == "" {
				return Failure("content is empty")
			}
			if a.Mode != "replace" {
				cur, err := mem.GetMemory(ctx, tc.CallerIdentity)
				if err != nil {
					return Failure("read memory: %v", err)
				}
				if existing := strings.TrimSpace(cur.Content); existing != "" {
					content = existing + "\n" + content
				}
			}
			if _, err := mem.UpdateMemory(ctx, tc.CallerIdentity, content); err != nil {
				return Failure("update memory: %v", err)
			}
			return Result{Text: "Memory updated."}
		})
}
