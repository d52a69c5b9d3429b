package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSchema(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"$schema": "http://json-schema.org/draft-07/schema#",
		"additionalProperties": false,
		"properties": {
			"symbol": {"type": "string", "description": "ticker", "minLength": 1},
			"side": {"type": ["string", "null"], "enum": ["long", "short"]},
			"tags": {"type": "array"},
			"filters": {"type": "object", "properties": {}, "required": []},
			"limit": {"type": "integer", "default": 20}
		},
		"required": ["symbol", "ghost"]
	}`), &raw))

	s := SanitizeSchema(raw)
	require.NotNil(t, s)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"symbol"}, s.Required, "required entries without a property are dropped")
	assert.Equal(t, "ticker", s.Properties["symbol"].Description)
	assert.Equal(t, "string", s.Properties["side"].Type)
	assert.Equal(t, []string{"long", "short"}, s.Properties["side"].Enum)
	require.NotNil(t, s.Properties["tags"].Items)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
	assert.Nil(t, s.Properties["filters"].Properties)
	assert.Nil(t, s.Properties["filters"].Required)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "additionalProperties")
	assert.NotContains(t, string(out), "minLength")
	assert.NotContains(t, string(out), "default")
}
