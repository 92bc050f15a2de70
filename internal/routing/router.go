package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/davidbz/hearth/internal/domain"
)

// SimpleRouter selects a provider by asking each registered provider whether
// it serves the requested model. Model-family conventions (gpt-* is OpenAI,
// claude* is Anthropic, llama*/mistral* is Ollama) live in the adapters'
// IsModelSupported, not here.
type SimpleRouter struct {
	registry domain.ProviderRegistry
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry) *SimpleRouter {
	return &SimpleRouter{
		registry: registry,
	}
}

// Route selects a provider based on the model name. The scan order is
// sorted so routing is deterministic when several providers claim a model.
func (r *SimpleRouter) Route(ctx context.Context, req *domain.RouteRequest) (string, error) {
	if req == nil {
		return "", errors.New("route request cannot be nil")
	}

	if req.Model == "" {
		return "", errors.New("model name is required")
	}

	providerNames, err := r.registry.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list providers: %w", err)
	}

	if len(providerNames) == 0 {
		return "", errors.New("no providers available")
	}

	sort.Strings(providerNames)

	for _, name := range providerNames {
		provider, getErr := r.registry.Get(ctx, name)
		if getErr != nil {
			continue
		}

		if provider.IsModelSupported(ctx, req.Model) {
			return name, nil
		}
	}

	return "", fmt.Errorf("no provider found for model: %s", req.Model)
}
