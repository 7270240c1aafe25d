package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxKeys bounds how many counters a MemoryStore holds at once.
const DefaultMaxKeys = 100_000

type window struct {
	key     string
	count   int64
	expires time.Time
	elem    *list.Element
}

// MemoryStore keeps counters in process. Used when no Redis is configured.
// Once maxKeys counters exist, the oldest window is evicted to make room.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	order   *list.List // windows by start time, oldest first
	maxKeys int
	now     func() time.Time
	ops     int
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithLimit(DefaultMaxKeys)
}

func NewMemoryStoreWithLimit(maxKeys int) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &MemoryStore{
		windows: make(map[string]*window),
		order:   list.New(),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, d time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.ops++
	if s.ops%1024 == 0 {
		s.sweep(now)
	}

	w, ok := s.windows[key]
	if ok && !now.Before(w.expires) {
		s.remove(w)
		ok = false
	}
	if !ok {
		for len(s.windows) >= s.maxKeys {
			s.remove(s.order.Front().Value.(*window))
		}
		w = &window{key: key, expires: now.Add(d)}
		w.elem = s.order.PushBack(w)
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return 0, nil
	}
	ttl := w.expires.Sub(s.now())
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok {
		s.remove(w)
	}
	return nil
}

// Len is the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// remove drops w. Caller holds mu.
func (s *MemoryStore) remove(w *window) {
	s.order.Remove(w.elem)
	delete(s.windows, w.key)
}

// sweep drops expired windows. Caller holds mu.
func (s *MemoryStore) sweep(now time.Time) {
	for _, w := range s.windows {
		if !now.Before(w.expires) {
			s.remove(w)
		}
	}
}
