package ollama

// Config contains Ollama provider configuration. The URL points at the
// generate endpoint of a local or dockerized Ollama server.
type Config struct {
	URL     string `env:"OLLAMA_URL"     envDefault:"http://localhost:11434/api/generate"`
	Timeout int    `env:"OLLAMA_TIMEOUT" envDefault:"120"`
}
