package llm

import "fmt"

// SanitizeSchema keeps only type, description, enum, properties, items and
// required. Arrays without items default to string items. Empty
// properties and required lists are dropped, and required entries that
// name no property are removed.
func SanitizeSchema(raw map[string]any) *Schema {
	if raw == nil {
		return nil
	}
	s := &Schema{Type: schemaType(raw["type"])}
	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := raw["enum"].([]any); ok && len(enum) > 0 {
		for _, v := range enum {
			s.Enum = append(s.Enum, fmt.Sprint(v))
		}
	}
	if enum, ok := raw["enum"].([]string); ok && len(enum) > 0 {
		s.Enum = append(s.Enum, enum...)
	}
	if props, ok := raw["properties"].(map[string]any); ok && len(props) > 0 {
		s.Properties = make(map[string]*Schema, len(props))
		for name, v := range props {
			if pm, ok := v.(map[string]any); ok {
				s.Properties[name] = SanitizeSchema(pm)
			} else {
				s.Properties[name] = &Schema{Type: "string"}
			}
		}
		if s.Type == "" {
			s.Type = "object"
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		s.Items = SanitizeSchema(items)
	}
	if s.Type == "array" && s.Items == nil {
		s.Items = &Schema{Type: "string"}
	}
	for _, r := range stringList(raw["required"]) {
		if _, ok := s.Properties[r]; ok {
			s.Required = append(s.Required, r)
		}
	}
	return s
}

// schemaType accepts both "string" and ["string","null"] forms.
func schemaType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
