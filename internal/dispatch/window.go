package dispatch

import "time"

// rateWindow tracks admission timestamps over a trailing span and decides
// whether a new admission is currently allowed. It never blocks or sleeps;
// waiting out a full window is the dispatcher loop's job.
//
// The window is owned exclusively by the dispatcher loop goroutine and is
// not safe for concurrent use.
type rateWindow struct {
	limit  int
	span   time.Duration
	stamps []time.Time
}

func newRateWindow(limit int, span time.Duration) *rateWindow {
	return &rateWindow{
		limit:  limit,
		span:   span,
		stamps: make([]time.Time, 0, limit),
	}
}

// evict drops every stamp strictly older than the trailing span relative to
// now. A stamp aged exactly the span is still live, so an admission can never
// land one instant early at the boundary.
func (w *rateWindow) evict(now time.Time) {
	cutoff := now.Add(-w.span)

	idx := 0
	for idx < len(w.stamps) && w.stamps[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}

// tryAdmit evicts stale stamps and, if the remaining count is strictly below
// the limit, records now and grants admission. At exactly the limit the
// admission is rejected and nothing is recorded, so the limit is a hard
// ceiling that is never exceeded even transiently.
func (w *rateWindow) tryAdmit(now time.Time) bool {
	w.evict(now)

	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return true
	}
	return false
}

// count returns the number of live stamps as of now.
func (w *rateWindow) count(now time.Time) int {
	w.evict(now)
	return len(w.stamps)
}

// nextExpiry reports when the oldest stamp leaves the window. The second
// return is false when the window holds no stamps.
func (w *rateWindow) nextExpiry() (time.Time, bool) {
	if len(w.stamps) == 0 {
		return time.Time{}, false
	}
	return w.stamps[0].Add(w.span), true
}
