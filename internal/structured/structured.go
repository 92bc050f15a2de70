// Package structured turns free-form completions into typed values.
// Models frequently wrap JSON answers in markdown code fences; this
// package strips that wrapping and retries when the payload still does
// not parse.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// DefaultAttempts is how many completions are requested before giving up
// on a parseable payload.
const DefaultAttempts = 3

// CleanModelJSON removes markdown code-fence lines from a completion,
// keeping everything between them intact. Input without fences is
// returned trimmed.
func CleanModelJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// CompleteJSON requests a completion and unmarshals its payload into out.
// Unparseable payloads are retried up to DefaultAttempts times; the last
// parse error is returned when every attempt fails.
func CompleteJSON(ctx context.Context, provider domain.Provider, req *domain.CompletionRequest, out any) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	if req == nil {
		return fmt.Errorf("request cannot be nil")
	}

	logger := observability.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= DefaultAttempts; attempt++ {
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("completion failed: %w", err)
		}

		payload := CleanModelJSON(resp.Content)
		if err := json.Unmarshal([]byte(payload), out); err != nil {
			lastErr = err
			logger.Warn("completion payload is not valid JSON, retrying",
				observability.Int("attempt", attempt),
				observability.Error(err))
			continue
		}
		return nil
	}

	return fmt.Errorf("no parseable JSON after %d attempts: %w", DefaultAttempts, lastErr)
}
