package anthropic

import "github.com/davidbz/hearth/internal/domain"

// ModelPricing maps supported model names to their pricing.
// Values are USD per 1K tokens.
//
//nolint:gochecknoglobals // Static pricing table
var ModelPricing = map[string]domain.PricingConfig{
	"claude-3-opus": {
		InputCostPer1K:  0.015,
		OutputCostPer1K: 0.075,
	},
	"claude-3-sonnet": {
		InputCostPer1K:  0.003,
		OutputCostPer1K: 0.015,
	},
	"claude-3-haiku": {
		InputCostPer1K:  0.00025,
		OutputCostPer1K: 0.00125,
	},
}
