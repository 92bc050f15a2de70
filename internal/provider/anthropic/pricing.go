package anthropic

import (
	"context"
	"fmt"

	"github.com/davidbz/hearth/internal/domain"
)

// RegisterPricing registers pricing for all supported Anthropic models.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	for model, pricing := range ModelPricing {
		if err := registry.RegisterPricing(ctx, model, pricing); err != nil {
			return fmt.Errorf("failed to register pricing for %s: %w", model, err)
		}
	}
	return nil
}
