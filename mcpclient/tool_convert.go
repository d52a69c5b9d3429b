package mcpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"journalagent/llm"
)

// ToolSchemaFromMCP converts a gateway tool into the completion service's
// schema format, sanitising its parameter schema on the way.
func ToolSchemaFromMCP(t mcp.Tool) llm.ToolSchema {
	raw := map[string]any{}
	if len(t.RawInputSchema) > 0 {
		_ = json.Unmarshal(t.RawInputSchema, &raw)
	} else {
		raw["type"] = t.InputSchema.Type
		if len(t.InputSchema.Properties) > 0 {
			raw["properties"] = t.InputSchema.Properties
		}
		if len(t.InputSchema.Required) > 0 {
			req := make([]any, 0, len(t.InputSchema.Required))
			for _, r := range t.InputSchema.Required {
				req = append(req, r)
			}
			raw["required"] = req
		}
	}
	params := llm.SanitizeSchema(raw)
	if params == nil {
		params = &llm.Schema{Type: "object"}
	}
	if params.Type == "" {
		params.Type = "object"
	}
	return llm.ToolSchema{Name: t.Name, Description: t.Description, Parameters: params}
}

// ResultText unwraps the textual payload of a tool result. The gateway
// wraps its answer as content[0].text; further parts are appended.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return "Tool execution completed but no result returned"
	}
	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, unwrapTextEnvelope(c.Text))
		case *mcp.TextContent:
			parts = append(parts, unwrapTextEnvelope(c.Text))
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		default:
			if b, err := json.Marshal(content); err == nil {
				parts = append(parts, string(b))
			} else {
				parts = append(parts, fmt.Sprintf("[Unknown content type: %T]", content))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// unwrapTextEnvelope handles gateways that double-encode text as
// {"type":"text","text":"..."}.
func unwrapTextEnvelope(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return text
	}
	var env struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Type == "text" && env.Text != nil {
		return *env.Text
	}
	return text
}
