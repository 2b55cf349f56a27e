package cache

import (
	"context"
	"sync"
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/shopspring/decimal"
)

// fakeClock is a manually advanced clock shared by a store and a cache
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPayload(value string) *report.Payload {
	p := report.NewPayload()
	p.KPIs = append(p.KPIs, report.KPI{Label: "Total invested", Value: value, Unit: "USD"})
	return p
}

func testEntry(key, value string, createdAt time.Time, ttl time.Duration) *Entry {
	return &Entry{Key: key, Payload: testPayload(value), CreatedAt: createdAt, TTL: ttl}
}

// recordingBroadcaster captures published messages
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []CacheMessage
	err      error
}

func (b *recordingBroadcaster) Publish(_ context.Context, msg CacheMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return b.err
}

func (b *recordingBroadcaster) Messages() []CacheMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CacheMessage(nil), b.messages...)
}

func decimalFromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
