package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON untouched",
			input:    `{"label":"6400"}`,
			expected: `{"label":"6400"}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"label\":\"6400\"}\n```",
			expected: `{"label":"6400"}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"label\":\"6400\"}\n```",
			expected: `{"label":"6400"}`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n{\"label\":\"6400\"}\n```\n  ",
			expected: `{"label":"6400"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestParseSuggestion(t *testing.T) {
	t.Run("label and confidence", func(t *testing.T) {
		s, err := parseSuggestion(`{"label":"6400","confidence":0.85}`, nil)
		require.NoError(t, err)
		assert.Equal(t, "6400", s.Label)
		assert.InDelta(t, 0.85, s.Confidence, 0.001)
	})

	t.Run("missing confidence gets default", func(t *testing.T) {
		s, err := parseSuggestion(`{"label":"6400"}`, nil)
		require.NoError(t, err)
		assert.InDelta(t, DefaultSuggestionConfidence, s.Confidence, 0.001)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		s, err := parseSuggestion(`{"label":"6400","confidence":1.7}`, nil)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s.Confidence, 0.001)

		s, err = parseSuggestion(`{"label":"6400","confidence":-0.2}`, nil)
		require.NoError(t, err)
		assert.Zero(t, s.Confidence)
	})

	t.Run("markdown fenced response", func(t *testing.T) {
		s, err := parseSuggestion("```json\n{\"label\":\"TRAVEL\",\"confidence\":0.9}\n```", nil)
		require.NoError(t, err)
		assert.Equal(t, "TRAVEL", s.Label)
	})

	t.Run("candidate membership is case insensitive", func(t *testing.T) {
		candidates := []string{"Travel", "Meals", "Software"}

		s, err := parseSuggestion(`{"label":"MEALS","confidence":0.8}`, candidates)
		require.NoError(t, err)
		assert.Equal(t, "MEALS", s.Label)

		_, err = parseSuggestion(`{"label":"Lodging","confidence":0.8}`, candidates)
		assert.Error(t, err)
	})

	t.Run("empty label rejected", func(t *testing.T) {
		_, err := parseSuggestion(`{"confidence":0.8}`, nil)
		assert.Error(t, err)
	})

	t.Run("malformed JSON rejected", func(t *testing.T) {
		_, err := parseSuggestion(`the GL code is probably 6400`, nil)
		assert.Error(t, err)
	})
}

func TestParseEscalation(t *testing.T) {
	t.Run("full result", func(t *testing.T) {
		r, err := parseEscalation(`{"value":"6400","detail":"Recurring software subscription","confidence":0.95}`)
		require.NoError(t, err)
		assert.Equal(t, "6400", r.Value)
		assert.Equal(t, "Recurring software subscription", r.Detail)
		assert.InDelta(t, 0.95, r.Confidence, 0.001)
	})

	t.Run("detail optional", func(t *testing.T) {
		r, err := parseEscalation(`{"value":"6400"}`)
		require.NoError(t, err)
		assert.Empty(t, r.Detail)
		assert.InDelta(t, DefaultSuggestionConfidence, r.Confidence, 0.001)
	})

	t.Run("empty value rejected", func(t *testing.T) {
		_, err := parseEscalation(`{"detail":"no idea"}`)
		assert.Error(t, err)
	})
}
