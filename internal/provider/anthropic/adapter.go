// Package anthropic provides an adapter for the Anthropic API using the
// official SDK. It implements the domain.Provider interface and keeps
// cumulative token counters for delta accounting.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// Provider implements the domain.Provider interface for Anthropic.
type Provider struct {
	client      *anthropic.Client
	name        string
	maxTokens   int
	temperature float64
	usage       *domain.UsageAccumulator
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &Provider{
		client:      &client,
		name:        "anthropic",
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		usage:       domain.NewUsageAccumulator(),
	}, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API")

	params := p.toSDKParams(req)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic API call failed", observability.Error(err))
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	logger.Debug("Anthropic API call succeeded",
		observability.Int("input_tokens", int(resp.Usage.InputTokens)),
		observability.Int("output_tokens", int(resp.Usage.OutputTokens)),
	)

	p.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return p.toDomainResponse(resp), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// IsModelSupported checks if the provider supports the given model.
func (p *Provider) IsModelSupported(_ context.Context, model string) bool {
	if _, ok := ModelPricing[model]; ok {
		return true
	}
	return strings.HasPrefix(model, "claude")
}

// SupportedModels returns the models with known pricing.
func (p *Provider) SupportedModels(_ context.Context) []string {
	models := make([]string, 0, len(ModelPricing))
	for model := range ModelPricing {
		models = append(models, model)
	}
	return models
}

// UsageTotals returns the cumulative token counters across all calls.
func (p *Provider) UsageTotals() domain.UsageTotals {
	return p.usage.Totals()
}

// toSDKParams converts domain request to SDK MessageNewParams. System
// messages become the system prompt; Anthropic does not accept them inline.
func (p *Provider) toSDKParams(req *domain.CompletionRequest) anthropic.MessageNewParams {
	var systemPrompt string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	return params
}

// toDomainResponse converts SDK response to domain response.
func (p *Provider) toDomainResponse(resp *anthropic.Message) *domain.CompletionResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	inputTokens := int(resp.Usage.InputTokens)
	outputTokens := int(resp.Usage.OutputTokens)

	return &domain.CompletionResponse{
		ID:       resp.ID,
		Model:    string(resp.Model),
		Provider: p.name,
		Content:  content.String(),
		Usage: domain.Usage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		},
		FinishTime: time.Now(),
	}
}
