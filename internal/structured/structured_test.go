package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON untouched",
			input:    `{"name": "value"}`,
			expected: `{"name": "value"}`,
		},
		{
			name:     "fenced JSON",
			input:    "```json\n{\"name\": \"value\"}\n```",
			expected: `{"name": "value"}`,
		},
		{
			name:     "bare fences",
			input:    "```\n[1, 2, 3]\n```",
			expected: `[1, 2, 3]`,
		},
		{
			name:     "indented fences",
			input:    "  ```json\n{}\n  ```",
			expected: `{}`,
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "\n\n{\"ok\": true}\n\n",
			expected: `{"ok": true}`,
		},
		{
			name:     "multi-line body preserved",
			input:    "```json\n{\n  \"a\": 1,\n  \"b\": 2\n}\n```",
			expected: "{\n  \"a\": 1,\n  \"b\": 2\n}",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, CleanModelJSON(tt.input))
		})
	}
}

type scriptedProvider struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedProvider) Complete(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return &domain.CompletionResponse{Content: s.responses[idx]}, nil
}

func (s *scriptedProvider) Name() string                                  { return "scripted" }
func (s *scriptedProvider) IsModelSupported(context.Context, string) bool { return true }
func (s *scriptedProvider) SupportedModels(context.Context) []string      { return nil }

func TestCompleteJSON_ParsesFirstAttempt(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"```json\n{\"city\": \"Lisbon\"}\n```"}}

	var out struct {
		City string `json:"city"`
	}
	err := CompleteJSON(context.Background(), provider, domain.NewPrompt("echo4", "where?"), &out)
	require.NoError(t, err)
	require.Equal(t, "Lisbon", out.City)
	require.Equal(t, 1, provider.calls)
}

func TestCompleteJSON_RetriesUntilParseable(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"I think the answer is probably 42.",
		`{"answer": 42}`,
	}}

	var out struct {
		Answer int `json:"answer"`
	}
	err := CompleteJSON(context.Background(), provider, domain.NewPrompt("echo4", "answer?"), &out)
	require.NoError(t, err)
	require.Equal(t, 42, out.Answer)
	require.Equal(t, 2, provider.calls)
}

func TestCompleteJSON_ExhaustsAttempts(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"not json at all"}}

	var out map[string]any
	err := CompleteJSON(context.Background(), provider, domain.NewPrompt("echo4", "q"), &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no parseable JSON")
	require.Equal(t, DefaultAttempts, provider.calls)
}

func TestCompleteJSON_ProviderErrorIsNotRetried(t *testing.T) {
	providerErr := errors.New("upstream down")
	provider := &scriptedProvider{err: providerErr}

	var out map[string]any
	err := CompleteJSON(context.Background(), provider, domain.NewPrompt("echo4", "q"), &out)
	require.ErrorIs(t, err, providerErr)
}

func TestCompleteJSON_Validation(t *testing.T) {
	var out map[string]any
	require.Error(t, CompleteJSON(context.Background(), nil, domain.NewPrompt("echo4", "q"), &out))
	require.Error(t, CompleteJSON(context.Background(), &scriptedProvider{responses: []string{"{}"}}, nil, &out))
}
