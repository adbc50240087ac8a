package traffic

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordSuccess records a successful plot request outcome.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed plot request outcome (source error, timeout, etc.).
func RecordError() {
	defaultTracker.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps. Feeds the degraded
// health state.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
}

// RecordSuccess records a successful request outcome in the tracker.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records a failed request outcome in the tracker.
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

// ErrorRate returns (errorCount, totalCount) for outcomes within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.pruneLocked(now)
	cutoff := now.Add(-window)
	for _, ts := range t.errorTimes {
		if ts.After(cutoff) {
			errors++
		}
	}
	successes := 0
	for _, ts := range t.successTimes {
		if ts.After(cutoff) {
			successes++
		}
	}
	return errors, errors + successes
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
}

func (t *Tracker) recordOutcome(times *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*times = append(*times, now)
	t.pruneLocked(now)
}

// maxWindow bounds retained history; no health window looks back further.
const maxWindow = 15 * time.Minute

// pruneLocked drops outcomes older than maxWindow. Caller must hold mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxWindow)
	t.successTimes = pruneBefore(t.successTimes, cutoff)
	t.errorTimes = pruneBefore(t.errorTimes, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times); i++ {
		if times[i].After(cutoff) {
			break
		}
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
}
