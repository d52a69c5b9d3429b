package events

import (
	"time"
)

// EventType names an event on the outbound stream.
type EventType string

const (
	TextChunk    EventType = "text_chunk"
	ToolCall     EventType = "tool_call"
	ToolResult   EventType = "tool_result"
	Citation     EventType = "citation"
	EmbeddedData EventType = "embedded_data"
	Done         EventType = "done"
	Error        EventType = "error"
)

// EventData is implemented by every event payload.
type EventData interface {
	GetEventType() EventType
}

// Event is one emitted event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Data      EventData `json:"data"`
}

// NewEvent wraps data in an Event stamped with the current time.
func NewEvent(requestID string, data EventData) *Event {
	return &Event{
		Type:      data.GetEventType(),
		Timestamp: time.Now(),
		RequestID: requestID,
		Data:      data,
	}
}

// TextChunkEvent is a provisional fragment of the answer.
type TextChunkEvent struct {
	Text string `json:"text"`
}

func (e *TextChunkEvent) GetEventType() EventType { return TextChunk }

// ToolCallEvent announces a tool invocation.
type ToolCallEvent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Turn      int            `json:"turn"`
}

func (e *ToolCallEvent) GetEventType() EventType { return ToolCall }

// ToolResultEvent reports a finished tool invocation.
type ToolResultEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Succeeded  bool   `json:"succeeded"`
	Preview    string `json:"preview,omitempty"`
	HasImage   bool   `json:"has_image,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Turn       int    `json:"turn"`
}

func (e *ToolResultEvent) GetEventType() EventType { return ToolResult }

// CitationEvent surfaces a source used by a tool.
type CitationEvent struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

func (e *CitationEvent) GetEventType() EventType { return Citation }

// EmbeddedDataEvent carries the entities referenced by the final answer,
// keyed by kind then id.
type EmbeddedDataEvent struct {
	Entities map[string]map[string]any `json:"entities"`
}

func (e *EmbeddedDataEvent) GetEventType() EventType { return EmbeddedData }

// DoneEvent terminates a stream. FinalText is authoritative; earlier text
// chunks are provisional.
type DoneEvent struct {
	Success   bool             `json:"success"`
	FinalText string           `json:"final_text"`
	Citations []*CitationEvent `json:"citations"`
	Metadata  map[string]any   `json:"metadata"`
}

func (e *DoneEvent) GetEventType() EventType { return Done }

// ErrorEvent reports a failure on the stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

func (e *ErrorEvent) GetEventType() EventType { return Error }
