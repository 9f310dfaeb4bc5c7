package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/eternalmemory/eternal/pkg/metrics"
)

// MemoryStore is a process-local TTL cache. Expiry is checked lazily on read; an optional
// janitor sweeps expired entries in the background and an optional capacity bound evicts
// the least recently used entry. Each server process owns an independent instance.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	now      func() time.Time

	janitorInterval time.Duration
	stop            chan struct{}
	done            chan struct{}
	closeOnce       sync.Once
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero => never
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity bounds the number of entries. Zero or negative keeps the store unbounded.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides time.Now, used by tests to step over TTL boundaries.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJanitor starts a goroutine that purges expired entries every interval.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.janitorInterval = interval
		}
	}
}

// NewMemoryStore constructs an empty store. Call Close when a janitor was requested.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.janitorInterval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.janitor()
	}
	return s
}

// Get returns a copy of the stored value. Entries whose expiry is at or before now are
// evicted and reported absent.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		metrics.CacheEvents.WithLabelValues("miss").Inc()
		return nil, false, nil
	}

	entry := el.Value.(*memoryEntry)
	if s.expiredLocked(entry, s.now()) {
		s.removeLocked(el)
		metrics.CacheEvents.WithLabelValues("expired").Inc()
		return nil, false, nil
	}

	s.order.MoveToFront(el)
	metrics.CacheEvents.WithLabelValues("hit").Inc()
	return cloneBytes(entry.value), true, nil
}

// Set stores value under key, replacing any existing entry. ttl <= 0 never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, cloneBytes(value), ttl)
	metrics.CacheEvents.WithLabelValues("set").Inc()
	return nil
}

// Delete removes keys unconditionally. Missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if el, ok := s.entries[key]; ok {
			s.removeLocked(el)
			metrics.CacheEvents.WithLabelValues("delete").Inc()
		}
	}
	return nil
}

// IncrementWithTTL increments a decimal counter. The window starts with the first
// increment and is not extended by later ones.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		if !s.expiredLocked(entry, now) {
			current, _ := strconv.ParseInt(string(entry.value), 10, 64)
			current++
			entry.value = []byte(strconv.FormatInt(current, 10))
			s.order.MoveToFront(el)
			return current, entry.expiresAt.Sub(now), nil
		}
		s.removeLocked(el)
	}

	s.setLocked(key, []byte("1"), window)
	return 1, window, nil
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (s *MemoryStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		if s.expiredLocked(el.Value.(*memoryEntry), now) {
			s.removeLocked(el)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		metrics.CacheEvents.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// Close stops the janitor if one is running. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return nil
}

func (s *MemoryStore) janitor() {
	defer close(s.done)

	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

func (s *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	if el, ok := s.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		s.order.MoveToFront(el)
		return
	}

	if s.capacity > 0 && len(s.entries) >= s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			s.removeLocked(oldest)
			metrics.CacheEvents.WithLabelValues("evicted").Inc()
		}
	}

	s.entries[key] = s.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(s.entries, entry.key)
	s.order.Remove(el)
}

func (s *MemoryStore) expiredLocked(entry *memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
