package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/dispatch"
	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/google"
	"github.com/davidbz/hearth/internal/provider/ollama"
	"github.com/davidbz/hearth/internal/provider/openai"
)

// Config represents the gateway configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Dispatch  dispatch.Config
	Cache     CacheConfig
	Logging   LoggingConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
	Google    google.Config
	Ollama    ollama.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// CacheConfig contains Redis response-cache settings. Caching is off
// unless an address is set.
type CacheConfig struct {
	RedisAddr     string `env:"CACHE_REDIS_ADDR"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"CACHE_REDIS_DB" envDefault:"0"`
	TTLSeconds    int    `env:"CACHE_TTL"      envDefault:"3600"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
	FileDir     string `env:"LOG_COMPLETIONS_DIR"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	Server    *ServerConfig
	CORS      *CORSConfig
	Dispatch  *dispatch.Config
	Cache     *CacheConfig
	Logging   *LoggingConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
	Google    *google.Config
	Ollama    *ollama.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:    &cfg.Server,
		CORS:      &cfg.CORS,
		Dispatch:  &cfg.Dispatch,
		Cache:     &cfg.Cache,
		Logging:   &cfg.Logging,
		OpenAI:    &cfg.OpenAI,
		Anthropic: &cfg.Anthropic,
		Google:    &cfg.Google,
		Ollama:    &cfg.Ollama,
	}
}
