package anthropic

// Config contains Anthropic provider configuration.
type Config struct {
	APIKey      string  `env:"ANTHROPIC_API_KEY"`
	BaseURL     string  `env:"ANTHROPIC_BASE_URL"`
	MaxTokens   int     `env:"ANTHROPIC_MAX_TOKENS"  envDefault:"4096"`
	Temperature float64 `env:"ANTHROPIC_TEMPERATURE" envDefault:"0.8"`
}
