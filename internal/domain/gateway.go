package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidbz/hearth/internal/observability"
)

// GatewayService orchestrates requests to providers.
type GatewayService struct {
	registry       ProviderRegistry
	router         Router
	costCalculator CostCalculator
	cache          ResponseCache
	cacheTTL       time.Duration
}

// NewGatewayService creates a new gateway service. Cached responses are
// stored with cacheTTL; a zero TTL stores them without expiry.
func NewGatewayService(
	registry ProviderRegistry,
	router Router,
	costCalculator CostCalculator,
	cache ResponseCache,
	cacheTTL time.Duration,
) *GatewayService {
	return &GatewayService{
		registry:       registry,
		router:         router,
		costCalculator: costCalculator,
		cache:          cache,
		cacheTTL:       cacheTTL,
	}
}

// Complete handles a completion request against a named provider.
func (g *GatewayService) Complete(
	ctx context.Context,
	providerName string,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if providerName == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	provider, err := g.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	return g.complete(ctx, provider, req)
}

// CompleteByModel handles a completion request with automatic provider routing.
func (g *GatewayService) CompleteByModel(
	ctx context.Context,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	providerName, err := g.router.Route(ctx, &RouteRequest{Model: req.Model})
	if err != nil {
		return nil, fmt.Errorf("provider routing failed: %w", err)
	}

	provider, err := g.registry.Get(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("provider not found: %w", err)
	}

	return g.complete(ctx, provider, req)
}

// complete runs the shared cache/execute/cost path.
func (g *GatewayService) complete(
	ctx context.Context,
	provider Provider,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	logger := observability.FromContext(ctx)

	if g.cache != nil {
		cached, cacheErr := g.cache.Get(ctx, req)
		if cacheErr != nil && !errors.Is(cacheErr, ErrCacheMiss) {
			logger.Warn("cache get failed, continuing without cache",
				observability.Error(cacheErr))
		}
		if cached != nil {
			logger.Info("cache hit, returning cached response",
				observability.String("cached_model", cached.Model))
			return cached, nil
		}
	}

	response, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	// Calculate cost in domain layer
	cost, _ := g.costCalculator.Calculate(ctx, response.Model, response.Usage)
	response.Usage.Cost = cost

	if g.cache != nil {
		if setErr := g.cache.Set(ctx, req, response, g.cacheTTL); setErr != nil {
			logger.Warn("failed to store in cache", observability.Error(setErr))
		}
	}

	return response, nil
}

// ProviderUsage reports the accumulated usage totals for every registered
// provider that exposes them (dispatch-wrapped providers do).
func (g *GatewayService) ProviderUsage(ctx context.Context) (map[string]UsageTotals, error) {
	names, err := g.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	totals := make(map[string]UsageTotals, len(names))
	for _, name := range names {
		provider, getErr := g.registry.Get(ctx, name)
		if getErr != nil {
			continue
		}
		if reporter, ok := provider.(UsageReporter); ok {
			totals[name] = reporter.UsageTotals()
		}
	}

	return totals, nil
}
