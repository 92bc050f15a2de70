package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

// stubProvider is a configurable in-memory provider for dispatcher tests.
type stubProvider struct {
	name         string
	completeFunc func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)

	mu         sync.Mutex
	admissions []time.Time
	prompts    []string

	current atomic.Int64
	peak    atomic.Int64
	calls   atomic.Int64
}

func newStubProvider(name string) *stubProvider {
	return &stubProvider{name: name}
}

func (s *stubProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	s.calls.Add(1)

	n := s.current.Add(1)
	for {
		old := s.peak.Load()
		if n <= old || s.peak.CompareAndSwap(old, n) {
			break
		}
	}
	defer s.current.Add(-1)

	s.mu.Lock()
	s.admissions = append(s.admissions, time.Now())
	if len(req.Messages) > 0 {
		s.prompts = append(s.prompts, req.Messages[0].Content)
	}
	s.mu.Unlock()

	if s.completeFunc != nil {
		return s.completeFunc(ctx, req)
	}

	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[0].Content
	}
	return &domain.CompletionResponse{
		ID:       fmt.Sprintf("stub-%d", s.calls.Load()),
		Model:    req.Model,
		Provider: s.name,
		Content:  "echo: " + content,
		Usage: domain.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		FinishTime: time.Now(),
	}, nil
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) IsModelSupported(_ context.Context, model string) bool {
	return model == "stub-model"
}

func (s *stubProvider) SupportedModels(_ context.Context) []string {
	return []string{"stub-model"}
}

func (s *stubProvider) admissionTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.admissions))
	copy(out, s.admissions)
	return out
}

func (s *stubProvider) seenPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// countingProvider keeps cumulative token counters but reports no usage on
// responses, so the dispatcher must fall back to delta accounting.
type countingProvider struct {
	stubProvider
	totals *domain.UsageAccumulator
}

func newCountingProvider() *countingProvider {
	p := &countingProvider{totals: domain.NewUsageAccumulator()}
	p.name = "counting"
	p.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		p.totals.Add(7, 13)
		return &domain.CompletionResponse{
			ID:       "counting-1",
			Model:    req.Model,
			Provider: p.name,
			Content:  "ok",
		}, nil
	}
	return p
}

func (p *countingProvider) UsageTotals() domain.UsageTotals {
	return p.totals.Totals()
}

func shutdownNow(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{MaxRequestsPerMinute: 1, MaxConcurrentRequests: 1}, wantErr: false},
		{name: "zero rate", cfg: Config{MaxRequestsPerMinute: 0, MaxConcurrentRequests: 1}, wantErr: true},
		{name: "negative rate", cfg: Config{MaxRequestsPerMinute: -5, MaxConcurrentRequests: 1}, wantErr: true},
		{name: "zero concurrency", cfg: Config{MaxRequestsPerMinute: 1, MaxConcurrentRequests: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNew_RejectsInvalidConstruction(t *testing.T) {
	_, err := New(nil, Config{MaxRequestsPerMinute: 1, MaxConcurrentRequests: 1})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(newStubProvider("p"), Config{MaxRequestsPerMinute: 0, MaxConcurrentRequests: 1})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestDispatcher_EachCallerGetsItsOwnResult(t *testing.T) {
	provider := newStubProvider("stub")
	d, err := New(provider, Config{MaxRequestsPerMinute: 1000, MaxConcurrentRequests: 8})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prompt := fmt.Sprintf("prompt-%d", i)
			resp, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", prompt))
			require.NoError(t, err)
			require.Equal(t, "echo: "+prompt, resp.Content)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(n), provider.calls.Load())
}

func TestDispatcher_ConcurrencyCeiling(t *testing.T) {
	provider := newStubProvider("stub")
	provider.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		time.Sleep(5 * time.Millisecond)
		return &domain.CompletionResponse{Model: req.Model, Provider: "stub", Content: "ok"}, nil
	}

	const limit = 4
	d, err := New(provider, Config{MaxRequestsPerMinute: 10000, MaxConcurrentRequests: limit})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, provider.peak.Load(), int64(limit))
}

func TestDispatcher_UsageExactUnderConcurrency(t *testing.T) {
	provider := newStubProvider("stub")

	const n = 150
	d, err := New(provider, Config{MaxRequestsPerMinute: 100000, MaxConcurrentRequests: 16})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	totals := d.UsageTotals()
	require.Equal(t, int64(n*10), totals.InputTokens)
	require.Equal(t, int64(n*20), totals.OutputTokens)
	require.Equal(t, int64(n*30), totals.TotalTokens())

	shutdownNow(t, d)
}

func TestDispatcher_UsageDeltaFallback(t *testing.T) {
	provider := newCountingProvider()

	// Concurrency 1 keeps before/after snapshots of the cumulative
	// counters free of interleaving.
	d, err := New(provider, Config{MaxRequestsPerMinute: 1000, MaxConcurrentRequests: 1})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	for i := 0; i < 5; i++ {
		_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
		require.NoError(t, err)
	}

	totals := d.UsageTotals()
	require.Equal(t, int64(5*7), totals.InputTokens)
	require.Equal(t, int64(5*13), totals.OutputTokens)
}

func TestDispatcher_ProviderErrorReachesOwningCallerOnly(t *testing.T) {
	providerErr := errors.New("upstream exploded")
	provider := newStubProvider("stub")
	provider.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		if req.Messages[0].Content == "boom" {
			return nil, providerErr
		}
		return &domain.CompletionResponse{
			Model:    req.Model,
			Provider: "stub",
			Content:  "echo: " + req.Messages[0].Content,
		}, nil
	}

	d, err := New(provider, Config{MaxRequestsPerMinute: 1000, MaxConcurrentRequests: 4})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	prompts := []string{"one", "two", "boom", "four", "five"}
	var wg sync.WaitGroup
	for _, prompt := range prompts {
		wg.Add(1)
		go func(prompt string) {
			defer wg.Done()
			resp, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", prompt))
			if prompt == "boom" {
				require.ErrorIs(t, err, providerErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "echo: "+prompt, resp.Content)
		}(prompt)
	}
	wg.Wait()
}

func TestDispatcher_ProviderPanicUnblocksCaller(t *testing.T) {
	provider := newStubProvider("stub")
	provider.completeFunc = func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		panic("provider bug")
	}

	d, err := New(provider, Config{MaxRequestsPerMinute: 10, MaxConcurrentRequests: 1})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	_, err = d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
	require.ErrorIs(t, err, domain.ErrDispatchInternal)
}

func TestDispatcher_FIFOAdmission(t *testing.T) {
	gate := make(chan struct{})
	provider := newStubProvider("stub")
	provider.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		<-gate
		return &domain.CompletionResponse{Model: req.Model, Provider: "stub", Content: "ok"}, nil
	}

	// One admission per short window, concurrency 2: requests are gated
	// only by rate limiting, so admission must follow submission order.
	d, err := newDispatcher(provider,
		Config{MaxRequestsPerMinute: 1, MaxConcurrentRequests: 2},
		50*time.Millisecond)
	require.NoError(t, err)
	defer shutdownNow(t, d)

	var wg sync.WaitGroup
	submit := func(prompt string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", prompt))
			require.NoError(t, err)
		}()
	}

	submit("first")
	time.Sleep(20 * time.Millisecond) // ensure queue order
	submit("second")
	time.Sleep(20 * time.Millisecond)
	submit("third")

	close(gate)
	wg.Wait()

	require.Equal(t, []string{"first", "second", "third"}, provider.seenPrompts())
}

func TestDispatcher_SlidingWindowAdmissionSpacing(t *testing.T) {
	provider := newStubProvider("stub")

	const span = 100 * time.Millisecond
	const perWindow = 2

	d, err := newDispatcher(provider,
		Config{MaxRequestsPerMinute: perWindow, MaxConcurrentRequests: 10},
		span)
	require.NoError(t, err)
	defer shutdownNow(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	times := provider.admissionTimes()
	require.Len(t, times, 6)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	// Within any trailing window of length span there are at most
	// perWindow admissions, so admissions perWindow apart must span at
	// least the window (minus scheduling slack).
	for i := 0; i+perWindow < len(times); i++ {
		gap := times[i+perWindow].Sub(times[i])
		require.GreaterOrEqual(t, gap, span-20*time.Millisecond,
			"admissions %d and %d too close: %v", i, i+perWindow, gap)
	}
}

func TestDispatcher_Shutdown(t *testing.T) {
	t.Run("drains in-flight, fails queued", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 16)
		provider := newStubProvider("stub")
		provider.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
			started <- struct{}{}
			<-release
			return &domain.CompletionResponse{Model: req.Model, Provider: "stub", Content: "ok"}, nil
		}

		d, err := New(provider, Config{MaxRequestsPerMinute: 1000, MaxConcurrentRequests: 3})
		require.NoError(t, err)

		results := make(chan error, 5)
		for i := 0; i < 5; i++ {
			go func() {
				_, err := d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
				results <- err
			}()
		}

		// Wait until exactly 3 are in flight; the remaining 2 stay queued
		// behind the concurrency limit.
		for i := 0; i < 3; i++ {
			select {
			case <-started:
			case <-time.After(2 * time.Second):
				t.Fatal("in-flight requests never started")
			}
		}

		shutdownErr := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownErr <- d.Shutdown(ctx)
		}()

		// The two queued requests fail fast with the shutdown sentinel.
		failed := 0
		for failed < 2 {
			select {
			case err := <-results:
				require.ErrorIs(t, err, domain.ErrDispatcherClosed)
				failed++
			case <-time.After(2 * time.Second):
				t.Fatal("queued requests not failed on shutdown")
			}
		}

		close(release)

		require.NoError(t, <-shutdownErr)
		for i := 0; i < 3; i++ {
			require.NoError(t, <-results)
		}

		// Submissions after shutdown are rejected outright.
		_, err = d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
		require.ErrorIs(t, err, domain.ErrDispatcherClosed)
	})

	t.Run("bounded drain reports stragglers", func(t *testing.T) {
		hang := make(chan struct{})
		defer close(hang)
		provider := newStubProvider("stub")
		provider.completeFunc = func(_ context.Context, _ *domain.CompletionRequest) (*domain.CompletionResponse, error) {
			<-hang
			return nil, errors.New("late")
		}

		d, err := New(provider, Config{MaxRequestsPerMinute: 10, MaxConcurrentRequests: 1})
		require.NoError(t, err)

		go func() {
			_, _ = d.Complete(context.Background(), domain.NewPrompt("stub-model", "x"))
		}()

		require.Eventually(t, func() bool { return provider.calls.Load() == 1 },
			2*time.Second, time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = d.Shutdown(ctx)
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("idempotent on an idle dispatcher", func(t *testing.T) {
		d, err := New(newStubProvider("stub"), Config{MaxRequestsPerMinute: 10, MaxConcurrentRequests: 1})
		require.NoError(t, err)

		shutdownNow(t, d)
		shutdownNow(t, d)
	})
}

func TestDispatcher_AbandonedCallerStillAccounted(t *testing.T) {
	release := make(chan struct{})
	provider := newStubProvider("stub")
	provider.completeFunc = func(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		<-release
		return &domain.CompletionResponse{
			Model: req.Model, Provider: "stub", Content: "ok",
			Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		}, nil
	}

	d, err := New(provider, Config{MaxRequestsPerMinute: 10, MaxConcurrentRequests: 1})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = d.Complete(ctx, domain.NewPrompt("stub-model", "x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The worker keeps running and its usage still lands in the totals.
	close(release)
	require.Eventually(t, func() bool {
		return d.UsageTotals().TotalTokens() == 30
	}, 2*time.Second, time.Millisecond)
}

func TestDispatcher_Name(t *testing.T) {
	d, err := New(newStubProvider("openai"), Config{MaxRequestsPerMinute: 10, MaxConcurrentRequests: 1})
	require.NoError(t, err)
	defer shutdownNow(t, d)

	require.Equal(t, "dispatch(openai)", d.Name())
	require.True(t, d.IsModelSupported(context.Background(), "stub-model"))
	require.Equal(t, []string{"stub-model"}, d.SupportedModels(context.Background()))
}
