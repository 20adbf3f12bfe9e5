// Package cache provides TTL caching of model responses keyed by a
// deterministic request fingerprint. Identical requests are served from
// memory instead of spending another remote call.
package cache

import "time"

// TTLs per request category. Recommendations go stale with the athlete's
// soreness, so they expire quickly; image and feedback analyses are stable
// for much longer.
const (
	TTLRecommendation   = 12 * time.Hour
	TTLPlan             = 24 * time.Hour
	TTLMovementAnalysis = 7 * 24 * time.Hour
	TTLFeedbackAnalysis = 30 * 24 * time.Hour
)

// Config holds cache configuration.
type Config struct {
	// MaxEntries is the maximum number of entries (0 = default).
	MaxEntries int64

	// DefaultTTL is the expiration applied when Set is called with ttl 0.
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweeper removes
	// expired entries.
	SweepInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:    10000,
		DefaultTTL:    24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	// Hits is the number of successful lookups.
	Hits int64

	// Misses is the number of lookups that found nothing usable.
	Misses int64

	// Sets is the number of writes.
	Sets int64

	// Evictions is the number of entries evicted due to the size limit.
	Evictions int64

	// Expirations is the number of entries removed because their TTL lapsed.
	Expirations int64

	// Size is the current number of entries.
	Size int64

	// MaxEntries is the configured size limit.
	MaxEntries int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Entry represents a cached response.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the entry's TTL has lapsed at t.
func (e Entry) IsExpired(t time.Time) bool {
	return !t.Before(e.ExpiresAt)
}
