package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should load config with defaults", func(t *testing.T) {
		// Clear environment
		os.Clearenv()

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify defaults
		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 30, cfg.Server.WriteTimeout)
		require.Equal(t, 60, cfg.Dispatch.MaxRequestsPerMinute)
		require.Equal(t, 8, cfg.Dispatch.MaxConcurrentRequests)
		require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
		require.Equal(t, 60, cfg.OpenAI.Timeout)
		require.Equal(t, 3, cfg.OpenAI.MaxRetries)
		require.Empty(t, cfg.OpenAI.APIKey)
		require.Empty(t, cfg.Anthropic.APIKey)
		require.Equal(t, 4096, cfg.Anthropic.MaxTokens)
		require.Equal(t, "http://localhost:11434/api/generate", cfg.Ollama.URL)
		require.Empty(t, cfg.Cache.RedisAddr)
		require.Equal(t, 3600, cfg.Cache.TTLSeconds)
	})

	t.Run("should load config from environment variables", func(t *testing.T) {
		// Set environment variables using t.Setenv for automatic cleanup
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("DISPATCH_MAX_REQUESTS_PER_MINUTE", "100")
		t.Setenv("DISPATCH_MAX_CONCURRENT_REQUESTS", "4")
		t.Setenv("OPENAI_API_KEY", "sk-test-key")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
		t.Setenv("GOOGLE_API_KEY", "g-test")
		t.Setenv("OLLAMA_URL", "http://ollama:11434/api/generate")
		t.Setenv("CACHE_REDIS_ADDR", "redis:6379")
		t.Setenv("CACHE_TTL", "120")
		t.Setenv("LOG_COMPLETIONS_DIR", "/tmp/llm_logs")

		cfg := config.Load()

		require.NotNil(t, cfg)

		// Verify loaded values
		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, 100, cfg.Dispatch.MaxRequestsPerMinute)
		require.Equal(t, 4, cfg.Dispatch.MaxConcurrentRequests)
		require.Equal(t, "sk-test-key", cfg.OpenAI.APIKey)
		require.Equal(t, "sk-ant-test", cfg.Anthropic.APIKey)
		require.Equal(t, "g-test", cfg.Google.APIKey)
		require.Equal(t, "http://ollama:11434/api/generate", cfg.Ollama.URL)
		require.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
		require.Equal(t, 120, cfg.Cache.TTLSeconds)
		require.Equal(t, "/tmp/llm_logs", cfg.Logging.FileDir)
	})
}
