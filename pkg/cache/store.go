package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Store is an in-memory TTL cache with LRU eviction. The mutex guards the
// check-and-mutate sequences (lookup+evict, set, sweep) so expiry stays
// consistent under concurrent requests.
type Store struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	cfg     Config
	stats   Stats
	now     func() time.Time
	stopCh  chan struct{}
	stopped atomic.Bool
}

type storeItem struct {
	entry Entry
}

// New creates a Store and starts its background sweeper.
func New(cfg Config) *Store {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	s := &Store{
		items:  make(map[string]*list.Element),
		lru:    list.New(),
		cfg:    cfg,
		now:    time.Now,
		stopCh: make(chan struct{}),
		stats:  Stats{MaxEntries: cfg.MaxEntries},
	}

	go s.sweepLoop()

	return s
}

// Get returns the value stored under key if present and unexpired.
// An expired entry is deleted on the spot and reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		atomic.AddInt64(&s.stats.Misses, 1)
		return nil, false
	}

	item := elem.Value.(*storeItem)
	if item.entry.IsExpired(s.now()) {
		s.removeElement(elem)
		atomic.AddInt64(&s.stats.Misses, 1)
		atomic.AddInt64(&s.stats.Expirations, 1)
		return nil, false
	}

	s.lru.MoveToFront(elem)
	atomic.AddInt64(&s.stats.Hits, 1)

	return item.entry.Value, true
}

// Set stores or overwrites the value under key. A ttl of 0 applies the
// configured default.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	created := s.now()
	entry := Entry{
		Key:       key,
		Value:     value,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}

	if elem, ok := s.items[key]; ok {
		elem.Value = &storeItem{entry: entry}
		s.lru.MoveToFront(elem)
		atomic.AddInt64(&s.stats.Sets, 1)
		return
	}

	for atomic.LoadInt64(&s.stats.Size) >= s.cfg.MaxEntries {
		s.evictOldest()
	}

	elem := s.lru.PushFront(&storeItem{entry: entry})
	s.items[key] = elem
	atomic.AddInt64(&s.stats.Size, 1)
	atomic.AddInt64(&s.stats.Sets, 1)
}

// ClearExpired removes every entry whose TTL has lapsed. The background
// sweeper calls this on a fixed interval; it is safe to call directly.
func (s *Store) ClearExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var toRemove []*list.Element

	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		if elem.Value.(*storeItem).entry.IsExpired(now) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		s.removeElement(elem)
		atomic.AddInt64(&s.stats.Expirations, 1)
	}
}

// Clear empties the cache.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lru.Init()
	atomic.StoreInt64(&s.stats.Size, 0)
}

// Stats returns a snapshot of the cache counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadInt64(&s.stats.Hits),
		Misses:      atomic.LoadInt64(&s.stats.Misses),
		Sets:        atomic.LoadInt64(&s.stats.Sets),
		Evictions:   atomic.LoadInt64(&s.stats.Evictions),
		Expirations: atomic.LoadInt64(&s.stats.Expirations),
		Size:        atomic.LoadInt64(&s.stats.Size),
		MaxEntries:  s.cfg.MaxEntries,
	}
}

// Close stops the background sweeper.
func (s *Store) Close() error {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	return nil
}

func (s *Store) evictOldest() {
	elem := s.lru.Back()
	if elem == nil {
		return
	}
	s.removeElement(elem)
	atomic.AddInt64(&s.stats.Evictions, 1)
}

func (s *Store) removeElement(elem *list.Element) {
	item := elem.Value.(*storeItem)
	delete(s.items, item.entry.Key)
	s.lru.Remove(elem)
	atomic.AddInt64(&s.stats.Size, -1)
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ClearExpired()
		case <-s.stopCh:
			return
		}
	}
}
