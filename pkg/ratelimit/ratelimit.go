// Package ratelimit bounds outbound model calls with sliding windows of
// call timestamps. A call is admitted only when every configured window is
// under its cap; denial is a normal return value, never an error.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a bounded span of time over which calls are counted.
type Window struct {
	// Name labels the window in stats ("1m", "1h").
	Name string

	// Duration is the window length.
	Duration time.Duration

	// Limit is the maximum number of calls admitted within Duration.
	Limit int
}

// DefaultWindows returns the stock quota: 10 calls per minute and
// 100 per hour, both of which must hold for admission.
func DefaultWindows() []Window {
	return []Window{
		{Name: "1m", Duration: time.Minute, Limit: 10},
		{Name: "1h", Duration: time.Hour, Limit: 100},
	}
}

// Stats holds limiter counters.
type Stats struct {
	Admitted int64
	Denied   int64
}

// Limiter is an in-process sliding-window rate limiter. It is strictly
// per-process: horizontally scaled deployments multiply the effective quota.
type Limiter struct {
	mu       sync.Mutex
	windows  []Window
	calls    [][]time.Time
	admitted int64
	denied   int64
	now      func() time.Time
}

// New creates a Limiter over the given windows. With no windows it uses
// DefaultWindows.
func New(windows ...Window) *Limiter {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	return &Limiter{
		windows: windows,
		calls:   make([][]time.Time, len(windows)),
		now:     time.Now,
	}
}

// TryAcquire prunes expired timestamps from every window, then admits the
// call only if each window is strictly under its limit. Admission records
// the current instant into all windows atomically; denial has no side
// effect.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	for i, w := range l.windows {
		if len(l.calls[i]) >= w.Limit {
			l.denied++
			return false
		}
	}

	for i := range l.calls {
		l.calls[i] = append(l.calls[i], now)
	}
	l.admitted++
	return true
}

// Remaining returns, per window name, how many calls could still be
// admitted right now.
func (l *Limiter) Remaining() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	remaining := make(map[string]int, len(l.windows))
	for i, w := range l.windows {
		r := w.Limit - len(l.calls[i])
		if r < 0 {
			r = 0
		}
		remaining[w.Name] = r
	}
	return remaining
}

// Stats returns a snapshot of the admission counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Admitted: l.admitted, Denied: l.denied}
}

// prune drops timestamps older than each window's duration. Caller holds
// the mutex.
func (l *Limiter) prune(now time.Time) {
	for i, w := range l.windows {
		kept := l.calls[i][:0]
		for _, ts := range l.calls[i] {
			if now.Sub(ts) < w.Duration {
				kept = append(kept, ts)
			}
		}
		l.calls[i] = kept
	}
}
