package domain

import "errors"

var (
	// ErrInvalidConfig indicates a non-positive dispatch limit or similar
	// construction-time misconfiguration. It is never returned at runtime.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDispatcherClosed is returned to callers whose requests were still
	// queued when shutdown began, and to submissions after shutdown.
	ErrDispatcherClosed = errors.New("dispatcher is shutting down")

	// ErrDispatchInternal marks a failure inside the dispatch plumbing
	// itself, as opposed to a provider failure. It is always logged loudly
	// because the alternative is a caller blocking forever.
	ErrDispatchInternal = errors.New("internal dispatch failure")

	// ErrCacheMiss indicates no cached entry was found.
	ErrCacheMiss = errors.New("cache miss")
)
