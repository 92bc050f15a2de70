// Package redis implements an exact-match completion cache backed by
// Redis. Identical requests (same model and message sequence) hit the
// same key; any difference misses.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const keyPrefix = "completion:"

// ResponseCache stores completion responses keyed by request content.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a Redis-backed response cache.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get returns the cached response for an identical earlier request, or
// domain.ErrCacheMiss when none exists.
func (c *ResponseCache) Get(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	logger := observability.FromContext(ctx)
	key := cacheKey(req)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		logger.Error("cache lookup failed",
			observability.String("key", key),
			observability.Error(err))
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var resp domain.CompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warn("discarding unreadable cache entry",
			observability.String("key", key),
			observability.Error(err))
		return nil, domain.ErrCacheMiss
	}

	logger.Debug("cache hit",
		observability.String("key", key),
		observability.String("model", req.Model))
	return &resp, nil
}

// Set stores a response under the request's content key.
func (c *ResponseCache) Set(ctx context.Context, req *domain.CompletionRequest, resp *domain.CompletionResponse, ttl time.Duration) error {
	logger := observability.FromContext(ctx)
	key := cacheKey(req)

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Error("cache store failed",
			observability.String("key", key),
			observability.Error(err))
		return fmt.Errorf("cache store failed: %w", err)
	}

	logger.Debug("cached response",
		observability.String("key", key),
		observability.String("model", req.Model))
	return nil
}

// cacheKey hashes the model and message sequence. Temperature and token
// limits are deliberately excluded so retries with tweaked sampling still
// reuse the cached answer.
func cacheKey(req *domain.CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	for _, msg := range req.Messages {
		h.Write([]byte{0})
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}
