package llm

import (
	"context"
	"strings"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one element of a message. Exactly one field is set.
type Part struct {
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Media      *Media
}

// Media is inline binary content such as an uploaded chart screenshot.
type Media struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	// Signature is the opaque reasoning signature the service attached to
	// the call. It is sent back verbatim when the call is replayed.
	Signature []byte
}

// ToolResult is the outcome of a tool call as fed back to the model.
// Failures are carried as text with Succeeded=false.
type ToolResult struct {
	CallID    string
	Name      string
	Args      map[string]any
	Output    string
	Succeeded bool
}

// Message is a transcript entry.
type Message struct {
	Role  Role
	Parts []Part
}

// TextMessage builds a single-part text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text parts of m.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Schema is the JSON-schema subset accepted by the completion service.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// ToolSchema describes a callable tool.
type ToolSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// ToolChoice controls whether the model may, must or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceAny  ToolChoice = "any"
	ToolChoiceNone ToolChoice = "none"
)

// Request is a single completion request.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSchema
	ToolChoice   ToolChoice
	Temperature  float64
	MaxTokens    int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the normalised reply of one completion call.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// IsEmpty reports a successful reply that carries neither text nor tool calls.
func (r *Response) IsEmpty() bool {
	return r == nil || (strings.TrimSpace(r.Text) == "" && len(r.ToolCalls) == 0)
}

// Model is a hosted completion service.
type Model interface {
	// Generate performs a blocking completion.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// GenerateStream performs a completion and invokes onText for every
	// incremental text fragment before returning the aggregated response.
	GenerateStream(ctx context.Context, req *Request, onText func(string)) (*Response, error)
	// ModelID returns the configured model identifier.
	ModelID() string
}
