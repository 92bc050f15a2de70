package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestCacheKey_DeterministicPerContent(t *testing.T) {
	a := domain.NewPrompt("gpt-4o", "what is the capital of France?")
	b := domain.NewPrompt("gpt-4o", "what is the capital of France?")

	require.Equal(t, cacheKey(a), cacheKey(b))
	require.True(t, strings.HasPrefix(cacheKey(a), keyPrefix))
}

func TestCacheKey_DistinguishesContent(t *testing.T) {
	base := domain.NewPrompt("gpt-4o", "hello")

	differentModel := domain.NewPrompt("gpt-3.5-turbo", "hello")
	require.NotEqual(t, cacheKey(base), cacheKey(differentModel))

	differentPrompt := domain.NewPrompt("gpt-4o", "goodbye")
	require.NotEqual(t, cacheKey(base), cacheKey(differentPrompt))

	differentRole := &domain.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "system", Content: "hello"}},
	}
	require.NotEqual(t, cacheKey(base), cacheKey(differentRole))
}

func TestCacheKey_MessageBoundariesMatter(t *testing.T) {
	joined := &domain.CompletionRequest{
		Model:    "gpt-4o",
		Messages: []domain.Message{{Role: "user", Content: "ab"}},
	}
	split := &domain.CompletionRequest{
		Model: "gpt-4o",
		Messages: []domain.Message{
			{Role: "user", Content: "a"},
			{Role: "user", Content: "b"},
		},
	}
	require.NotEqual(t, cacheKey(joined), cacheKey(split))
}

func TestCacheKey_IgnoresSamplingParameters(t *testing.T) {
	a := &domain.CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []domain.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.2,
		MaxTokens:   128,
	}
	b := domain.NewPrompt("gpt-4o", "hi")

	require.Equal(t, cacheKey(a), cacheKey(b))
}
