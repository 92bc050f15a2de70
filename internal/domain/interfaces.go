package domain

import (
	"context"
	"time"
)

// Provider represents any LLM provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider identifier. Decorators return a composed
	// description such as "dispatch(openai)" so wrapped chains stay
	// introspectable.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns all models this provider is known to serve.
	SupportedModels(ctx context.Context) []string
}

// UsageReporter is an optional capability for providers that keep cumulative
// token counters across calls. The dispatcher uses it for before/after delta
// accounting; providers without it are still usable, their usage is simply
// taken from the per-response Usage when present.
type UsageReporter interface {
	UsageTotals() UsageTotals
}

// ProviderRegistry manages available providers. Providers are registered
// under an explicit name, normally the vendor name, which stays stable no
// matter how many decorators wrap the provider; Provider.Name() keeps the
// composed identity for introspection.
type ProviderRegistry interface {
	// Register adds a provider to the registry under the given name.
	Register(ctx context.Context, name string, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// Router determines which provider to use for a request.
type Router interface {
	// Route selects a provider name based on request criteria.
	Route(ctx context.Context, req *RouteRequest) (string, error)
}

// RouteRequest contains criteria for provider selection.
type RouteRequest struct {
	Model string
}

// ResponseCache stores completion responses keyed by request content.
type ResponseCache interface {
	// Get retrieves a cached response, or ErrCacheMiss.
	Get(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Set stores a response with a TTL.
	Set(ctx context.Context, req *CompletionRequest, resp *CompletionResponse, ttl time.Duration) error
}
