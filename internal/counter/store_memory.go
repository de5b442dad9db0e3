package counter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"gatekeeper/pkg/requestcontext"
)

// InMemoryStore implements Store for unit tests. It intentionally favors
// clarity over performance and evaluates expiry against the request-scoped
// clock so tests can advance time via requestcontext.WithTime.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewInMemory creates an empty in-memory counter store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*entry)}
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(ctx, key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *InMemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = requestcontext.Now(ctx).Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *InMemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(ctx, key), nil
}

func (s *InMemoryStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.incrLocked(ctx, key)
	if n == 1 {
		s.entries[key].expiresAt = requestcontext.Now(ctx).Add(window)
	}
	return n, nil
}

func (s *InMemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(ctx, key); e != nil {
		e.expiresAt = requestcontext.Now(ctx).Add(ttl)
	}
	return nil
}

func (s *InMemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(ctx, key)
	if e == nil {
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return 0, true, nil
	}
	return e.expiresAt.Sub(requestcontext.Now(ctx)), true, nil
}

func (s *InMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *InMemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for key := range s.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			if s.live(ctx, key) != nil {
				out = append(out, key)
			}
		}
	}
	return out, nil
}

// live returns the entry for key, removing it first if it has expired
// relative to the request clock. Callers must hold s.mu.
func (s *InMemoryStore) live(ctx context.Context, key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !requestcontext.Now(ctx).Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *InMemoryStore) incrLocked(ctx context.Context, key string) int64 {
	e := s.live(ctx, key)
	if e == nil {
		e = &entry{}
		s.entries[key] = e
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	return n
}
