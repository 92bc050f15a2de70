// Package google provides an adapter for the Google Gemini API using the
// official SDK. It implements the domain.Provider interface and keeps
// cumulative token counters for delta accounting.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Provider implements the domain.Provider interface for Google Gemini.
type Provider struct {
	client      *genai.Client
	name        string
	maxTokens   int
	temperature float64
	usage       *domain.UsageAccumulator
}

// NewProvider creates a new Google Gemini provider.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &Provider{
		client:      client,
		name:        "google",
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		usage:       domain.NewUsageAccumulator(),
	}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Google Gemini API")

	model := p.client.GenerativeModel(req.Model)

	maxTokens := int32(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.MaxOutputTokens = &maxTokens

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	if temperature > 0 {
		model.SetTemperature(float32(temperature))
	}

	parts := make([]genai.Part, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(msg.Content)},
			}
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		logger.Error("Google API call failed", observability.Error(err))
		return nil, fmt.Errorf("Google API call failed: %w", err)
	}

	promptTokens, completionTokens := 0, 0
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	p.usage.Add(int64(promptTokens), int64(completionTokens))

	return &domain.CompletionResponse{
		ID:       uuid.NewString(),
		Model:    req.Model,
		Provider: p.name,
		Content:  extractText(resp),
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishTime: time.Now(),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	return strings.HasPrefix(model, "gemini")
}

// SupportedModels returns the models this provider is known to serve.
func (p *Provider) SupportedModels(_ context.Context) []string {
	return []string{"gemini-1.5-pro", "gemini-1.5-flash"}
}

// UsageTotals returns the cumulative token counters across all calls.
func (p *Provider) UsageTotals() domain.UsageTotals {
	return p.usage.Totals()
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return builder.String()
}
