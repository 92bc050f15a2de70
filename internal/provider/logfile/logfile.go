// Package logfile provides a provider decorator that records every
// prompt/completion pair as a timestamped file pair in a log directory.
// It composes with any domain.Provider, including dispatch-wrapped ones,
// and forwards everything it does not intercept.
package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const logFilePerm = 0o644

// Provider wraps another provider and logs its traffic to disk.
type Provider struct {
	inner  domain.Provider
	logDir string
}

// NewProvider creates the decorator. The log directory is recreated on
// construction, dropping logs from previous runs.
func NewProvider(inner domain.Provider, logDir string) (*Provider, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner provider cannot be nil")
	}
	if logDir == "" {
		return nil, fmt.Errorf("log directory cannot be empty")
	}

	if err := os.RemoveAll(logDir); err != nil {
		return nil, fmt.Errorf("failed to clear log directory: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Provider{
		inner:  inner,
		logDir: logDir,
	}, nil
}

// Complete forwards to the wrapped provider and writes the prompt and the
// completion to two files sharing a timestamp prefix. Logging failures are
// reported but never fail the completion itself.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	stamp := timestamp(time.Now())
	logger := observability.FromContext(ctx)

	if writeErr := p.writeFile(stamp+"_a_prompt.txt", renderPrompt(req)); writeErr != nil {
		logger.Warn("failed to write prompt log", observability.Error(writeErr))
	}
	if writeErr := p.writeFile(stamp+"_b_completion.txt", resp.Content); writeErr != nil {
		logger.Warn("failed to write completion log", observability.Error(writeErr))
	}

	return resp, nil
}

// Name returns the composed identity, e.g. "logfile(dispatch(openai))".
func (p *Provider) Name() string {
	return "logfile(" + p.inner.Name() + ")"
}

// IsModelSupported delegates to the wrapped provider.
func (p *Provider) IsModelSupported(ctx context.Context, model string) bool {
	return p.inner.IsModelSupported(ctx, model)
}

// SupportedModels delegates to the wrapped provider.
func (p *Provider) SupportedModels(ctx context.Context) []string {
	return p.inner.SupportedModels(ctx)
}

// UsageTotals forwards the capability when the wrapped provider has it.
func (p *Provider) UsageTotals() domain.UsageTotals {
	if reporter, ok := p.inner.(domain.UsageReporter); ok {
		return reporter.UsageTotals()
	}
	return domain.UsageTotals{}
}

func (p *Provider) writeFile(name, content string) error {
	return os.WriteFile(filepath.Join(p.logDir, name), []byte(content), logFilePerm)
}

// timestamp formats with microsecond precision so concurrent completions
// land in distinct file pairs.
func timestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("2006_01_02_15_04_05"), t.Nanosecond()/1000)
}

func renderPrompt(req *domain.CompletionRequest) string {
	if len(req.Messages) == 1 {
		return req.Messages[0].Content
	}

	var builder strings.Builder
	for _, msg := range req.Messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}
