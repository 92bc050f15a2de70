// Package ollama provides an adapter for a self-hosted Ollama server over
// plain HTTP. Ollama reports no token usage, so this provider deliberately
// does not implement the UsageReporter capability; usage aggregation for it
// is skipped rather than failed.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Provider implements the domain.Provider interface for Ollama.
type Provider struct {
	url        string
	name       string
	httpClient *http.Client
}

// NewProvider creates a new Ollama provider.
func NewProvider(config Config) (*Provider, error) {
	if config.URL == "" {
		return nil, errors.New("Ollama URL is required")
	}

	return &Provider{
		url:  config.URL,
		name: "ollama",
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Ollama server")

	reqBody, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: flattenMessages(req.Messages),
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&genResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return &domain.CompletionResponse{
		ID:         uuid.NewString(),
		Model:      req.Model,
		Provider:   p.name,
		Content:    strings.TrimSpace(removeBrailleCharacters(genResp.Response)),
		FinishTime: time.Now(),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return strings.HasPrefix(model, "llama") || strings.HasPrefix(model, "mistral")
}

// SupportedModels returns the model families this provider serves.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return []string{"llama3", "mistral"}
}

// flattenMessages folds a chat transcript into the single prompt string the
// generate endpoint expects.
func flattenMessages(messages []domain.Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(msg.Content)
		builder.WriteString("\n")
	}
	return builder.String()
}

// removeBrailleCharacters strips the spinner glyphs (U+2800 to U+28FF) that
// some Ollama builds leak into their output.
func removeBrailleCharacters(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 0x2800 && r <= 0x28FF {
			return -1
		}
		return r
	}, s)
}
