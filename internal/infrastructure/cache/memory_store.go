package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MemoryStore implements Store with a sync.Map. Every key holds a pointer to
// an immutable Entry, so a Set is a single atomic pointer swap and readers
// never see a partially written entry.
type MemoryStore struct {
	entries         sync.Map // map[string]*Entry
	now             func() time.Time
	cleanupInterval time.Duration
	logger          *zap.Logger
	stopCh          chan struct{}
	stopped         int32

	hits   int64
	misses int64
}

// MemoryStoreOption is a functional option for configuring the store
type MemoryStoreOption func(*MemoryStore)

// WithMemoryLogger sets the logger for the store
func WithMemoryLogger(logger *zap.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithMemoryClock overrides the clock used for expiry checks
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithCleanupInterval sets how often expired entries are swept.
// Zero disables the sweep; expiry is then purely lazy.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		now:             time.Now,
		cleanupInterval: defaultCleanupInterval,
		logger:          zap.NewNop(),
		stopCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupExpired()
	}

	return s
}

// Get returns the live entry for key
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	if value, ok := s.entries.Load(key); ok {
		entry := value.(*Entry)
		if !entry.IsExpired(s.now()) {
			atomic.AddInt64(&s.hits, 1)
			return entry, nil
		}
		// only drop the entry we looked at, not a fresher one stored meanwhile
		s.entries.CompareAndDelete(key, entry)
	}

	atomic.AddInt64(&s.misses, 1)
	return nil, nil
}

// Set stores entry, replacing any previous entry for the same key
func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Payload == nil {
		return nil
	}
	s.entries.Store(entry.Key, entry)
	return nil
}

// Delete removes the entry for key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	if atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		close(s.stopCh)
	}
	return nil
}

// GetStats returns hit and miss counts
func (s *MemoryStore) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

// Count returns the number of stored entries, expired ones included
func (s *MemoryStore) Count() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("Panic in report cache cleanup", zap.Any("panic", r))
					}
				}()
				s.doCleanup()
			}()
		}
	}
}

func (s *MemoryStore) doCleanup() {
	now := s.now()
	removed := 0
	s.entries.Range(func(key, value any) bool {
		if value.(*Entry).IsExpired(now) {
			if s.entries.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	if removed > 0 {
		s.logger.Debug("Cleaned up expired report cache entries", zap.Int("removed", removed))
	}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
