package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query      string `json:"query" description:"search text"`
	PersonName string `json:"person_name"`
	NResults   int    `json:"n_results,omitempty" default:"3"`
}

func TestCreateSchema_RequiredOrderAndDefaults(t *testing.T) {
	schema := CreateSchema(searchArgs{})
	assert.Equal(t, []string{"query", "person_name"}, RequiredFields(schema))

	props := schema["properties"].(map[string]any)
	nres := props["n_results"].(map[string]any)
	assert.Equal(t, "integer", nres["type"])
	assert.Equal(t, float64(3), nres["default"])
	assert.Equal(t, "search text", props["query"].(map[string]any)["description"])
}

func TestValidateParameters_FirstViolationOrder(t *testing.T) {
	schema := CreateSchema(searchArgs{})

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{"missing required in schema order", map[string]any{"n_results": "x"}, "query"},
		{"second required", map[string]any{"query": "q"}, "person_name"},
		{"wrong type before extra", map[string]any{"query": "q", "person_name": 1, "zzz": true}, "person_name"},
		{"extra field", map[string]any{"query": "q", "person_name": "p", "extra": 1}, "extra"},
		{"null required field", map[string]any{"query": "q", "person_name": nil}, "person_name"},
		{"type checks run in field order", map[string]any{"query": nil, "person_name": 1}, "person_name"},
		{"non-integer float", map[string]any{"query": "q", "person_name": "p", "n_results": 2.5}, "n_results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.args, schema)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, ValidateParameters(map[string]any{"query": "q", "person_name": "p", "n_results": float64(2)}, schema))
	// null is still allowed for optional fields
	assert.NoError(t, ValidateParameters(map[string]any{"query": "q", "person_name": "p", "n_results": nil}, schema))
}

func TestValidateParameters_JSONDecodedSchema(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"type":"object",
		"properties":{"a":{"type":"string"}},
		"required":["a"],
		"additionalProperties":true
	}`), &schema))

	err := ValidateParameters(map[string]any{}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "a", ve.Field)

	assert.NoError(t, ValidateParameters(map[string]any{"a": "x", "b": 1}, schema))
}

func TestApplyDefaults(t *testing.T) {
	schema := CreateSchema(searchArgs{})
	in := map[string]any{"query": "q"}
	out := ApplyDefaults(in, schema)
	assert.Equal(t, float64(3), out["n_results"])
	_, touched := in["n_results"]
	assert.False(t, touched)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`Max {{.max_iterations}} steps for {{default "guest" .user}} <b>`, map[string]any{"max_iterations": 8})
	require.NoError(t, err)
	assert.Equal(t, "Max 8 steps for guest <b>", out)

	_, err = RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}
