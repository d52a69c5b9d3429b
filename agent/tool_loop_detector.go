// tool_loop_detector.go
//
// Stops a run before it executes a tool call that repeats the previous call
// exactly, or that would exceed the per-tool call cap.
//
// Exported:
//   - ToolLoopGuard
//   - NewToolLoopGuard
//   - LoopDetectionResult

package agent

import (
	"encoding/json"
	"fmt"

	"journalagent/llm"
)

// MaxPreviewLength is the maximum length for preview strings in logs
const MaxPreviewLength = 200

// LoopDetectionResult describes why a call was refused.
type LoopDetectionResult struct {
	Detected    bool
	ToolName    string
	Reason      string
	ArgsPreview string
}

// ToolLoopGuard tracks the calls admitted in one run.
type ToolLoopGuard struct {
	perToolCap int
	last       string
	counts     map[string]int
}

// NewToolLoopGuard creates a guard allowing perToolCap calls per tool name.
func NewToolLoopGuard(perToolCap int) *ToolLoopGuard {
	if perToolCap <= 0 {
		perToolCap = DefaultPerToolCallCap
	}
	return &ToolLoopGuard{perToolCap: perToolCap, counts: make(map[string]int)}
}

// normalizeArgs renders args with sorted keys so equal maps compare equal.
func normalizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// Admit checks a batch of calls in order. Either every call is admitted and
// recorded, or none is and the first offending call is reported.
func (g *ToolLoopGuard) Admit(calls []llm.ToolCall) *LoopDetectionResult {
	last := g.last
	pending := make(map[string]int, len(calls))
	for _, c := range calls {
		sig := c.Name + "\x00" + normalizeArgs(c.Args)
		if sig == last {
			return g.refuse(c, "identical to the previous call")
		}
		if g.counts[c.Name]+pending[c.Name] >= g.perToolCap {
			return g.refuse(c, fmt.Sprintf("called more than %d times", g.perToolCap))
		}
		pending[c.Name]++
		last = sig
	}
	for name, n := range pending {
		g.counts[name] += n
	}
	g.last = last
	return &LoopDetectionResult{Detected: false}
}

func (g *ToolLoopGuard) refuse(c llm.ToolCall, reason string) *LoopDetectionResult {
	preview := normalizeArgs(c.Args)
	if len(preview) > MaxPreviewLength {
		preview = preview[:MaxPreviewLength]
	}
	return &LoopDetectionResult{Detected: true, ToolName: c.Name, Reason: reason, ArgsPreview: preview}
}
