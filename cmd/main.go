package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/cache/redis"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/dispatch"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/google"
	"github.com/davidbz/hearth/internal/provider/logfile"
	"github.com/davidbz/hearth/internal/provider/ollama"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/routing"
)

const shutdownTimeout = 30 * time.Second

// dispatcherGroup tracks the dispatchers wrapped around each provider so
// main can drain them on shutdown.
type dispatcherGroup struct {
	dispatchers []*dispatch.Dispatcher
}

func (g *dispatcherGroup) shutdown(ctx context.Context) {
	for _, d := range g.dispatchers {
		if err := d.Shutdown(ctx); err != nil {
			observability.FromContext(ctx).Warn("dispatcher shutdown incomplete",
				observability.String("dispatcher", d.Name()),
				observability.Error(err))
		}
	}
}

func main() {
	container := buildContainer()

	err := container.Invoke(run)
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func run(_ *zap.Logger, server *http.Server, group *dispatcherGroup) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	case <-sigCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		observability.FromContext(ctx).Error("server shutdown failed", observability.Error(err))
	}
	group.shutdown(ctx)
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(func(logCfg *config.LoggingConfig) (*zap.Logger, error) {
		if logCfg.Development {
			return observability.InitDevelopmentLogger()
		}
		return observability.InitLogger()
	}); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Pricing
	if err := container.Provide(func() domain.PricingRegistry {
		return domain.NewInMemoryPricingRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}
	if err := container.Provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewStandardCostCalculator(pricing)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Providers, each wrapped in its own dispatcher
	if err := container.Provide(buildProviders); err != nil {
		log.Fatalf("Failed to provide providers: %v", err)
	}

	// Routing
	if err := container.Provide(func(reg domain.ProviderRegistry) domain.Router {
		return routing.NewRouter(reg)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Response cache (optional)
	if err := container.Provide(buildCache); err != nil {
		log.Fatalf("Failed to provide cache: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		reg domain.ProviderRegistry,
		router domain.Router,
		costCalc domain.CostCalculator,
		cache domain.ResponseCache,
		cacheCfg *config.CacheConfig,
	) *domain.GatewayService {
		ttl := time.Duration(cacheCfg.TTLSeconds) * time.Second
		return domain.NewGatewayService(reg, router, costCalc, cache, ttl)
	}); err != nil {
		log.Fatalf("Failed to provide gateway service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(func(corsCfg *config.CORSConfig) middleware.Middleware {
		return middleware.Chain(middleware.Trace(), middleware.CORS(corsCfg))
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// buildProviders constructs every configured provider, wraps each in a
// dispatcher enforcing the configured throughput limits, and registers it.
func buildProviders(cfg *config.Config, pricing domain.PricingRegistry) (domain.ProviderRegistry, *dispatcherGroup, error) {
	ctx := context.Background()
	reg := registry.NewRegistry()
	group := &dispatcherGroup{}

	if cfg.OpenAI.APIKey != "" {
		provider, err := openai.NewProvider(cfg.OpenAI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
		}
		if err := openai.RegisterPricing(ctx, pricing); err != nil {
			return nil, nil, err
		}
		if err := wireProvider(ctx, reg, group, cfg, provider); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Anthropic.APIKey != "" {
		provider, err := anthropic.NewProvider(cfg.Anthropic)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
		}
		if err := anthropic.RegisterPricing(ctx, pricing); err != nil {
			return nil, nil, err
		}
		if err := wireProvider(ctx, reg, group, cfg, provider); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Google.APIKey != "" {
		provider, err := google.NewProvider(ctx, cfg.Google)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Google provider: %w", err)
		}
		if err := wireProvider(ctx, reg, group, cfg, provider); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Ollama.URL != "" {
		provider, err := ollama.NewProvider(cfg.Ollama)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Ollama provider: %w", err)
		}
		if err := wireProvider(ctx, reg, group, cfg, provider); err != nil {
			return nil, nil, err
		}
	}

	return reg, group, nil
}

// wireProvider wraps a provider in a dispatcher, optionally in a logfile
// decorator, and registers the result under the vendor name. The composed
// decorator identity stays internal to Provider.Name().
func wireProvider(
	ctx context.Context,
	reg domain.ProviderRegistry,
	group *dispatcherGroup,
	cfg *config.Config,
	provider domain.Provider,
) error {
	dispatcher, err := dispatch.New(provider, cfg.Dispatch)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher for %s: %w", provider.Name(), err)
	}
	group.dispatchers = append(group.dispatchers, dispatcher)

	registered := domain.Provider(dispatcher)
	if cfg.Logging.FileDir != "" {
		logged, logErr := logfile.NewProvider(dispatcher, cfg.Logging.FileDir)
		if logErr != nil {
			return fmt.Errorf("failed to create logfile decorator for %s: %w", provider.Name(), logErr)
		}
		registered = logged
	}

	if err := reg.Register(ctx, provider.Name(), registered); err != nil {
		return fmt.Errorf("failed to register provider %s: %w", provider.Name(), err)
	}
	return nil
}

// buildCache returns a Redis-backed response cache, or nil when no Redis
// address is configured.
func buildCache(cacheCfg *config.CacheConfig) domain.ResponseCache {
	if cacheCfg.RedisAddr == "" {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cacheCfg.RedisAddr,
		Password: cacheCfg.RedisPassword,
		DB:       cacheCfg.RedisDB,
	})
	return redis.NewResponseCache(client)
}
