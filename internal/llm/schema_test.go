package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenaiSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"total_score": map[string]any{"type": "integer", "minimum": 0},
			"breakdown": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"quality": map[string]any{"type": "integer", "enum": []any{10, 5, 0}, "description": "Quality, one of 10, 5, 0"},
				},
				"required": []string{"quality"},
			},
			"level": map[string]any{"type": "string", "enum": []string{"high", "low"}},
			"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"total_score", "breakdown"},
	}

	got := GenaiSchema(schema)
	require.NotNil(t, got)
	assert.Equal(t, genai.TypeObject, got.Type)
	assert.Equal(t, []string{"total_score", "breakdown"}, got.Required)

	quality := got.Properties["breakdown"].Properties["quality"]
	assert.Equal(t, genai.TypeInteger, quality.Type)
	assert.Empty(t, quality.Enum, "integer enums are not sent to Gemini")
	assert.Equal(t, "Quality, one of 10, 5, 0", quality.Description)

	level := got.Properties["level"]
	assert.Equal(t, []string{"high", "low"}, level.Enum)
	assert.Equal(t, "enum", level.Format)

	assert.Equal(t, genai.TypeString, got.Properties["tags"].Items.Type)
}

func TestGenaiSchema_Nil(t *testing.T) {
	assert.Nil(t, GenaiSchema(nil))
}
