package cache

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	s := New(Config{MaxEntries: 100, DefaultTTL: time.Hour, SweepInterval: time.Hour})
	t.Cleanup(func() { _ = s.Close() })

	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clk.now
	return s, clk
}

func TestStore_GetSet(t *testing.T) {
	s, _ := newTestStore(t)

	s.Set("key1", "value1", 0)

	got, ok := s.Get("key1")
	if !ok {
		t.Fatal("expected hit for key1")
	}
	if got.(string) != "value1" {
		t.Errorf("expected 'value1', got %v", got)
	}

	if _, ok := s.Get("nonexistent"); ok {
		t.Error("expected miss for nonexistent key")
	}
}

func TestStore_Overwrite(t *testing.T) {
	s, _ := newTestStore(t)

	s.Set("key1", "v1", 0)
	s.Set("key1", "v2", 0)

	got, ok := s.Get("key1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.(string) != "v2" {
		t.Errorf("expected overwritten value 'v2', got %v", got)
	}

	if size := s.Stats().Size; size != 1 {
		t.Errorf("expected size 1 after overwrite, got %d", size)
	}
}

func TestStore_TTL(t *testing.T) {
	s, clk := newTestStore(t)

	s.Set("key1", "value1", 50*time.Minute)

	if _, ok := s.Get("key1"); !ok {
		t.Fatal("expected key to be visible before expiry")
	}

	clk.advance(50*time.Minute + time.Second)

	if _, ok := s.Get("key1"); ok {
		t.Error("expected key to be absent after TTL elapsed")
	}

	// Expired lookup evicted the entry.
	if size := s.Stats().Size; size != 0 {
		t.Errorf("expected lazy eviction to leave size 0, got %d", size)
	}
}

func TestStore_ClearExpired(t *testing.T) {
	s, clk := newTestStore(t)

	s.Set("short", 1, time.Minute)
	s.Set("long", 2, time.Hour)

	clk.advance(10 * time.Minute)
	s.ClearExpired()

	stats := s.Stats()
	if stats.Size != 1 {
		t.Errorf("expected 1 surviving entry, got %d", stats.Size)
	}
	if stats.Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", stats.Expirations)
	}
	if _, ok := s.Get("long"); !ok {
		t.Error("expected unexpired entry to survive the sweep")
	}
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t)

	s.Set("key1", 1, 0)
	s.Set("key2", 2, 0)

	s.Clear()

	if size := s.Stats().Size; size != 0 {
		t.Errorf("expected size 0 after clear, got %d", size)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	s := New(Config{MaxEntries: 3, DefaultTTL: time.Hour, SweepInterval: time.Hour})
	defer func() { _ = s.Close() }()

	s.Set("key1", 1, 0)
	s.Set("key2", 2, 0)
	s.Set("key3", 3, 0)

	// Touch key1 so key2 becomes the eviction candidate.
	_, _ = s.Get("key1")

	s.Set("key4", 4, 0)

	if _, ok := s.Get("key2"); ok {
		t.Error("expected key2 to be evicted")
	}
	if _, ok := s.Get("key1"); !ok {
		t.Error("expected key1 to survive")
	}
	if s.Stats().Evictions == 0 {
		t.Error("expected at least one eviction")
	}
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore(t)

	s.Set("key1", 1, 0)
	_, _ = s.Get("key1")
	_, _ = s.Get("nonexistent")

	stats := s.Stats()
	if stats.Sets != 1 {
		t.Errorf("expected 1 set, got %d", stats.Sets)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestStats_HitRate(t *testing.T) {
	tests := []struct {
		hits   int64
		misses int64
		want   float64
	}{
		{0, 0, 0},
		{10, 0, 100},
		{0, 10, 0},
		{50, 50, 50},
		{75, 25, 75},
	}

	for _, tt := range tests {
		stats := Stats{Hits: tt.hits, Misses: tt.misses}
		if got := stats.HitRate(); got != tt.want {
			t.Errorf("HitRate(%d, %d) = %f, want %f", tt.hits, tt.misses, got, tt.want)
		}
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := map[string]any{
		"userId": 42,
		"soreness": map[string]any{
			"shoulders": 8,
			"hips":      3,
		},
	}
	b := map[string]any{
		"soreness": map[string]any{
			"hips":      3,
			"shoulders": 8,
		},
		"userId": 42,
	}

	if Fingerprint("recommend", a) != Fingerprint("recommend", b) {
		t.Error("semantically equal params should produce identical keys")
	}
}

func TestFingerprint_Distinguishes(t *testing.T) {
	base := map[string]any{"userId": 1, "timeAvailable": 15}

	tests := []struct {
		name   string
		op     string
		params map[string]any
	}{
		{"different op", "plan", map[string]any{"userId": 1, "timeAvailable": 15}},
		{"different value", "recommend", map[string]any{"userId": 1, "timeAvailable": 30}},
		{"different field", "recommend", map[string]any{"userId": 1, "intensity": "light"}},
	}

	baseKey := Fingerprint("recommend", base)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.op, tt.params) == baseKey {
				t.Error("expected a distinct key")
			}
		})
	}
}

func TestFingerprint_NestedSlices(t *testing.T) {
	k1 := Fingerprint("plan", map[string]any{"focusAreas": []string{"back", "hips"}})
	k2 := Fingerprint("plan", map[string]any{"focusAreas": []string{"back", "hips"}})
	k3 := Fingerprint("plan", map[string]any{"focusAreas": []string{"hips", "back"}})

	if k1 != k2 {
		t.Error("same slice contents should hash identically")
	}
	if k1 == k3 {
		t.Error("slice order is semantic and must affect the key")
	}
}

func BenchmarkStore_Get(b *testing.B) {
	s := New(DefaultConfig())
	defer func() { _ = s.Close() }()

	s.Set("key", "value", 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get("key")
	}
}

func BenchmarkFingerprint(b *testing.B) {
	params := map[string]any{
		"userId":        42,
		"timeAvailable": 30,
		"focusAreas":    []string{"shoulders", "back"},
		"intensity":     "moderate",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Fingerprint("plan", params)
	}
}
