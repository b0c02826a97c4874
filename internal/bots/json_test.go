package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Stop       bool     `json:"stop"`
	Confidence float64  `json:"confidence"`
	Items      []string `json:"items"`
}

func TestExtractJSON_Plain(t *testing.T) {
	var p probe
	err := ExtractJSON(`{"stop": true, "confidence": 0.8}`, &p)

	require.NoError(t, err)
	assert.True(t, p.Stop)
	assert.Equal(t, 0.8, p.Confidence)
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	raw := "Вот мой ответ:\n{\"stop\": false, \"confidence\": 0.4}\nНадеюсь, это поможет."
	var p probe

	require.NoError(t, ExtractJSON(raw, &p))
	assert.False(t, p.Stop)
	assert.Equal(t, 0.4, p.Confidence)
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"stop\": true}\n```"
	var p probe

	require.NoError(t, ExtractJSON(raw, &p))
	assert.True(t, p.Stop)
}

func TestExtractJSON_TruncatedObjectRepaired(t *testing.T) {
	raw := `{"items": ["a", "b"], "confidence": 0.7`
	var p probe

	require.NoError(t, ExtractJSON(raw, &p))
	assert.Equal(t, []string{"a", "b"}, p.Items)
	assert.Equal(t, 0.7, p.Confidence)
}

func TestExtractJSON_TruncatedMidString(t *testing.T) {
	raw := `{"items": ["a", "b"], "note": "cut off mid sent`
	var p probe

	// The partial value is dropped, the completed part survives.
	require.NoError(t, ExtractJSON(raw, &p))
	assert.Equal(t, []string{"a", "b"}, p.Items)
}

func TestExtractJSON_NoObject(t *testing.T) {
	var p probe
	assert.ErrorIs(t, ExtractJSON("Извините, я не могу ответить.", &p), ErrNoJSON)
	assert.ErrorIs(t, ExtractJSON("", &p), ErrNoJSON)
}

func TestBalanceBraces(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`{"a": [1, 2`, `{"a": [1, 2]}`},
		{`{"a": {"b": 1`, `{"a": {"b": 1}}`},
		{`{"a": 1,`, `{"a": 1}`},
		{`{"a": "br{ace}s"}`, `{"a": "br{ace}s"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BalanceBraces(tt.in), tt.in)
	}
}
