package cache

import (
	"context"
	"time"

	"github.com/orchard/backend/internal/domain/report"
)

// Default cache settings
const (
	DefaultTTL             = 30 * time.Second
	DefaultL1TTL           = 5 * time.Second
	DefaultComputeTimeout  = 30 * time.Second
	defaultCleanupInterval = 30 * time.Second
)

// Entry is one cached report. Entries are never mutated after they are
// stored; a refresh replaces the whole entry.
type Entry struct {
	Key       string          `json:"key"`
	Payload   *report.Payload `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
}

// ExpiresAt returns the instant the entry stops being served
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired checks if the entry has expired at now
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Store is the backing key/value store of the report cache. Get returns
// (nil, nil) on a miss. Set replaces any existing entry atomically.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
}
