package google

// Config contains Google Gemini provider configuration.
type Config struct {
	APIKey      string  `env:"GOOGLE_API_KEY"`
	MaxTokens   int     `env:"GOOGLE_MAX_TOKENS"  envDefault:"4096"`
	Temperature float64 `env:"GOOGLE_TEMPERATURE" envDefault:"0.8"`
}
