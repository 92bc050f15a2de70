package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// outcome is what a worker delivers back to the waiting caller.
type outcome struct {
	resp *domain.CompletionResponse
	err  error
}

// pendingRequest pairs a submitted completion request with its write-once
// result slot. The caller reads the slot, the worker writes it exactly once,
// and nothing outlives the submit/await pair.
type pendingRequest struct {
	id          string
	ctx         context.Context
	req         *domain.CompletionRequest
	submittedAt time.Time
	result      chan outcome
	done        atomic.Bool
}

func newPendingRequest(ctx context.Context, id string, req *domain.CompletionRequest, now time.Time) *pendingRequest {
	return &pendingRequest{
		id:          id,
		ctx:         ctx,
		req:         req,
		submittedAt: now,
		result:      make(chan outcome, 1),
	}
}

// deliver writes the outcome into the result slot. Only the first call wins;
// later calls report false and write nothing, which keeps defensive failure
// paths from double-writing.
func (pr *pendingRequest) deliver(resp *domain.CompletionResponse, err error) bool {
	if !pr.done.CompareAndSwap(false, true) {
		return false
	}
	pr.result <- outcome{resp: resp, err: err}
	return true
}
