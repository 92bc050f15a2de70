package domain_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/domain"
)

func TestUsageTotals(t *testing.T) {
	totals := domain.UsageTotals{InputTokens: 120, OutputTokens: 340}
	require.Equal(t, int64(460), totals.TotalTokens())

	earlier := domain.UsageTotals{InputTokens: 20, OutputTokens: 40}
	delta := totals.Sub(earlier)
	require.Equal(t, int64(100), delta.InputTokens)
	require.Equal(t, int64(300), delta.OutputTokens)
}

func TestUsageAccumulator_Add(t *testing.T) {
	acc := domain.NewUsageAccumulator()
	require.Equal(t, domain.UsageTotals{}, acc.Totals())

	acc.Add(10, 20)
	acc.Add(5, 0)

	totals := acc.Totals()
	require.Equal(t, int64(15), totals.InputTokens)
	require.Equal(t, int64(20), totals.OutputTokens)
}

func TestUsageAccumulator_ConcurrentAdds(t *testing.T) {
	const (
		goroutines = 16
		perGo      = 500
	)

	acc := domain.NewUsageAccumulator()

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGo; j++ {
				acc.Add(3, 7)
			}
		}()
	}
	wg.Wait()

	totals := acc.Totals()
	require.Equal(t, int64(goroutines*perGo*3), totals.InputTokens)
	require.Equal(t, int64(goroutines*perGo*7), totals.OutputTokens)
}
