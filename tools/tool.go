// Package tools implements the assistant's local tools. Every tool takes
// validated arguments plus the caller's identity and never returns an
// error: failures are reported as text so the conversation can continue.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"journalagent/llm"
)

// Context carries per-request security scoping into a tool.
type Context struct {
	CallerIdentity  string
	ScopeIdentifier string
}

// Citation is a source a tool used, surfaced to the caller.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Result is a tool outcome. ImageURL marks a remote image that must be
// fetched and shown to the model ahead of Text.
type Result struct {
	Text      string
	Failed    bool
	ImageURL  string
	Citations []Citation
}

// Failure builds a failed result.
func Failure(format string, args ...any) Result {
	return Result{Text: "Error: " + fmt.Sprintf(format, args...), Failed: true}
}

// Tool is a locally implemented tool.
type Tool interface {
	Schema() llm.ToolSchema
	Execute(ctx context.Context, args map[string]any, tc Context) Result
}

// typedTool adapts a function over a typed argument struct. The argument
// schema is reflected from A once and used both for the model-facing
// declaration and for validating incoming arguments.
type typedTool[A any] struct {
	schema   llm.ToolSchema
	resolved *jsonschema.Resolved
	run      func(ctx context.Context, args A, tc Context) Result
}

// newTool builds a Tool from a typed handler. enums adds allowed values
// to top-level properties.
func newTool[A any](name, description string, enums map[string][]string, run func(context.Context, A, Context) Result) (Tool, error) {
	s, err := jsonschema.For[A](nil)
	if err != nil {
		return nil, fmt.Errorf("%s: schema: %w", name, err)
	}
	for prop, values := range enums {
		if p, ok := s.Properties[prop]; ok {
			p.Enum = make([]any, len(values))
			for i, v := range values {
				p.Enum[i] = v
			}
		}
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve schema: %w", name, err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal schema: %w", name, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: unmarshal schema: %w", name, err)
	}
	params := llm.SanitizeSchema(raw)
	if params == nil {
		params = &llm.Schema{Type: "object"}
	}
	sort.Strings(params.Required)

	return &typedTool[A]{
		schema:   llm.ToolSchema{Name: name, Description: description, Parameters: params},
		resolved: resolved,
		run:      run,
	}, nil
}

func (t *typedTool[A]) Schema() llm.ToolSchema { return t.schema }

func (t *typedTool[A]) Execute(ctx context.Context, args map[string]any, tc Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure("%s crashed: %v", t.schema.Name, r)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	// round-trip through JSON so validation sees plain JSON values
	data, err := json.Marshal(args)
	if err != nil {
		return Failure("invalid arguments: %v", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return Failure("invalid arguments: %v", err)
	}
	if err := t.resolved.Validate(generic); err != nil {
		return Failure("invalid arguments for %s: %v", t.schema.Name, err)
	}
	var typed A
	if err := json.Unmarshal(data, &typed); err != nil {
		return Failure("invalid arguments for %s: %v", t.schema.Name, err)
	}
	return t.run(ctx, typed, tc)
}
