package openai

import "github.com/davidbz/hearth/internal/domain"

// ModelPricing maps supported model names to their pricing.
// Values are USD per 1K tokens.
//
//nolint:gochecknoglobals // Static pricing table
var ModelPricing = map[string]domain.PricingConfig{
	"gpt-3.5-turbo": {
		InputCostPer1K:  0.0010,
		OutputCostPer1K: 0.0020,
	},
	"gpt-4-turbo": {
		InputCostPer1K:  0.01,
		OutputCostPer1K: 0.03,
	},
	"gpt-4o": {
		InputCostPer1K:  0.005,
		OutputCostPer1K: 0.015,
	},
}
