package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/store"
)

// maxMemoryChars bounds the memory block injected into the prompt.
const maxMemoryChars = 4000

// Input is what a system prompt is built from.
type Input struct {
	CallerIdentity  string
	ScopeIdentifier string
	Tools           []llm.ToolSchema
	Now             time.Time
}

// Builder produces the system prompt for a run.
type Builder interface {
	Build(ctx context.Context, in Input) string
}

// DefaultBuilder renders SystemPromptTemplate and injects the caller's
// stored memory when a MemoryStore is configured.
type DefaultBuilder struct {
	memories store.MemoryStore
	logger   loggerv2.Logger
}

// NewDefaultBuilder creates a builder. memories may be nil.
func NewDefaultBuilder(memories store.MemoryStore, logger loggerv2.Logger) *DefaultBuilder {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &DefaultBuilder{memories: memories, logger: logger}
}

// Build never fails; a memory lookup error only drops the memory section.
func (b *DefaultBuilder) Build(ctx context.Context, in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	toolUsage := ""
	if len(in.Tools) > 0 {
		toolUsage = strings.ReplaceAll(ToolUsageTemplate, "{{TOOL_LIST}}", formatToolList(in.Tools))
	}

	r := strings.NewReplacer(
		"{{CURRENT_DATE}}", now.Format("2006-01-02"),
		"{{CURRENT_TIME}}", now.Format("15:04 MST"),
		"{{CORE_PRINCIPLES}}", CorePrinciplesSection,
		"{{TOOL_USAGE}}", toolUsage,
		"{{REFERENCE_FORMAT}}", ReferenceFormatSection,
		"{{MEMORY_SECTION}}", b.memorySection(ctx, in.CallerIdentity),
	)
	return strings.TrimSpace(r.Replace(SystemPromptTemplate))
}

func (b *DefaultBuilder) memorySection(ctx context.Context, userID string) string {
	if b.memories == nil || userID == "" {
		return ""
	}
	m, err := b.memories.GetMemory(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("could not load user memory", loggerv2.Error(err), loggerv2.String("user_id", userID))
		}
		return ""
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return ""
	}
	if len(content) > maxMemoryChars {
		content = content[len(content)-maxMemoryChars:]
	}
	return strings.ReplaceAll(MemorySectionTemplate, "{{MEMORY}}", content)
}

func formatToolList(schemas []llm.ToolSchema) string {
	var sb strings.Builder
	for _, s := range schemas {
		desc := s.Description
		if i := strings.IndexByte(desc, '\n'); i >= 0 {
			desc = desc[:i]
		}
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}
