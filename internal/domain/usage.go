package domain

import "sync/atomic"

// UsageTotals is a snapshot of cumulative token consumption.
type UsageTotals struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TotalTokens returns the combined input and output count.
func (t UsageTotals) TotalTokens() int64 {
	return t.InputTokens + t.OutputTokens
}

// Sub returns the delta between two snapshots.
func (t UsageTotals) Sub(earlier UsageTotals) UsageTotals {
	return UsageTotals{
		InputTokens:  t.InputTokens - earlier.InputTokens,
		OutputTokens: t.OutputTokens - earlier.OutputTokens,
	}
}

// UsageAccumulator is a thread-safe, monotonically non-decreasing running
// total of token usage. Concurrent Add calls never lose updates.
type UsageAccumulator struct {
	input  atomic.Int64
	output atomic.Int64
}

// NewUsageAccumulator creates an accumulator starting at zero.
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{}
}

// Add applies one request's delta to the running totals.
func (a *UsageAccumulator) Add(inputTokens, outputTokens int64) {
	a.input.Add(inputTokens)
	a.output.Add(outputTokens)
}

// Totals returns the current snapshot.
func (a *UsageAccumulator) Totals() UsageTotals {
	return UsageTotals{
		InputTokens:  a.input.Load(),
		OutputTokens: a.output.Load(),
	}
}
