package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TieredStore keeps a short-lived local copy (L1) in front of a shared
// store (L2). Writes go to both tiers; a broadcast tells the other
// instances to drop their L1 copy of a refreshed key.
type TieredStore struct {
	l1          *MemoryStore
	l2          Store
	broadcaster Broadcaster
	l1TTL       time.Duration
	logger      *zap.Logger
	instanceID  string

	l1Hits   int64
	l1Misses int64
	l2Hits   int64
	l2Misses int64
}

// TieredStoreOption is a functional option for configuring the store
type TieredStoreOption func(*TieredStore)

// WithL1TTL caps how long an entry lives in the local tier
func WithL1TTL(ttl time.Duration) TieredStoreOption {
	return func(s *TieredStore) {
		s.l1TTL = ttl
	}
}

// WithBroadcaster publishes refreshed keys to other instances
func WithBroadcaster(b Broadcaster) TieredStoreOption {
	return func(s *TieredStore) {
		s.broadcaster = b
	}
}

// WithTieredLogger sets the logger for the store
func WithTieredLogger(logger *zap.Logger) TieredStoreOption {
	return func(s *TieredStore) {
		s.logger = logger
	}
}

// WithInstanceID names this process in published messages
func WithInstanceID(id string) TieredStoreOption {
	return func(s *TieredStore) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// NewTieredStore creates a new tiered store
func NewTieredStore(l1 *MemoryStore, l2 Store, opts ...TieredStoreOption) *TieredStore {
	s := &TieredStore{
		l1:         l1,
		l2:         l2,
		l1TTL:      DefaultL1TTL,
		logger:     zap.NewNop(),
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get reads L1, then L2. An L2 hit is copied into L1.
func (s *TieredStore) Get(ctx context.Context, key string) (*Entry, error) {
	entry, _ := s.l1.Get(ctx, key)
	if entry != nil {
		atomic.AddInt64(&s.l1Hits, 1)
		return entry, nil
	}
	atomic.AddInt64(&s.l1Misses, 1)

	entry, err := s.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		atomic.AddInt64(&s.l2Misses, 1)
		return nil, nil
	}
	atomic.AddInt64(&s.l2Hits, 1)

	_ = s.l1.Set(ctx, s.localCopy(entry))
	return entry, nil
}

// Set writes L2 first so L1 never holds an entry the shared tier lacks
func (s *TieredStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Payload == nil {
		return nil
	}
	if err := s.l2.Set(ctx, entry); err != nil {
		return err
	}
	_ = s.l1.Set(ctx, s.localCopy(entry))

	if s.broadcaster != nil {
		err := s.broadcaster.Publish(ctx, CacheMessage{
			Action: ActionEntryRefreshed,
			Key:    entry.Key,
			Source: s.instanceID,
		})
		if err != nil {
			s.logger.Warn("Failed to publish report refresh", zap.String("key", entry.Key), zap.Error(err))
		}
	}
	return nil
}

// Delete removes the entry from both tiers
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	if err := s.l2.Delete(ctx, key); err != nil {
		return err
	}
	return s.l1.Delete(ctx, key)
}

// HandleMessage drops the local copy of a key refreshed elsewhere.
// Messages this store published itself are ignored.
func (s *TieredStore) HandleMessage(msg CacheMessage) {
	if msg.Action != ActionEntryRefreshed || msg.Key == "" {
		return
	}
	if msg.Source == s.instanceID {
		return
	}
	_ = s.l1.Delete(context.Background(), msg.Key)
	s.logger.Debug("Dropped local report copy", zap.String("key", msg.Key))
}

// InstanceID returns the id this store stamps on published messages
func (s *TieredStore) InstanceID() string {
	return s.instanceID
}

// GetStats returns per-tier hit and miss counts
func (s *TieredStore) GetStats() (l1Hits, l1Misses, l2Hits, l2Misses int64) {
	return atomic.LoadInt64(&s.l1Hits), atomic.LoadInt64(&s.l1Misses),
		atomic.LoadInt64(&s.l2Hits), atomic.LoadInt64(&s.l2Misses)
}

// Close closes the local tier
func (s *TieredStore) Close() error {
	return s.l1.Close()
}

// localCopy shortens the entry lifetime to the L1 cap without outliving the original
func (s *TieredStore) localCopy(entry *Entry) *Entry {
	if s.l1TTL <= 0 {
		return entry
	}
	remaining := time.Until(entry.ExpiresAt())
	if remaining <= s.l1TTL {
		return entry
	}
	copied := *entry
	copied.TTL = copied.TTL - remaining + s.l1TTL
	return &copied
}

// Ensure TieredStore implements Store
var _ Store = (*TieredStore)(nil)
