package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTieredStore(t *testing.T, opts ...TieredStoreOption) (*TieredStore, *MemoryStore, *MemoryStore) {
	t.Helper()
	clock := newFakeClock()
	l1 := newTestMemoryStore(t, clock)
	l2 := newTestMemoryStore(t, clock)
	return NewTieredStore(l1, l2, opts...), l1, l2
}

func TestTieredStore_SetWritesBothTiers(t *testing.T) {
	s, l1, l2 := newTestTieredStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, testEntry("report_a", "1.00", time.Now(), time.Minute)))

	assert.Equal(t, 1, l1.Count())
	assert.Equal(t, 1, l2.Count())
}

func TestTieredStore_BackfillsL1FromL2(t *testing.T) {
	s, l1, l2 := newTestTieredStore(t)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, testEntry("report_a", "5.00", time.Now(), time.Minute)))

	entry, err := s.Get(ctx, "report_a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "5.00", entry.Payload.KPIs[0].Value)
	assert.Equal(t, 1, l1.Count())

	_, err = s.Get(ctx, "report_a")
	require.NoError(t, err)

	l1Hits, l1Misses, l2Hits, l2Misses := s.GetStats()
	assert.Equal(t, int64(1), l1Hits)
	assert.Equal(t, int64(1), l1Misses)
	assert.Equal(t, int64(1), l2Hits)
	assert.Equal(t, int64(0), l2Misses)
}

func TestTieredStore_LocalCopyIsCapped(t *testing.T) {
	s, _, _ := newTestTieredStore(t, WithL1TTL(5*time.Second))

	now := time.Now()
	entry := testEntry("report_a", "1.00", now, time.Hour)
	local := s.localCopy(entry)

	assert.WithinDuration(t, now.Add(5*time.Second), local.ExpiresAt(), time.Second)
	assert.Equal(t, time.Hour, entry.TTL, "original entry is untouched")

	short := testEntry("report_b", "1.00", now, 2*time.Second)
	assert.Same(t, short, s.localCopy(short))
}

func TestTieredStore_PublishesRefresh(t *testing.T) {
	b := &recordingBroadcaster{err: errors.New("redis down")}
	s, _, _ := newTestTieredStore(t, WithBroadcaster(b))

	err := s.Set(context.Background(), testEntry("report_a", "1.00", time.Now(), time.Minute))
	require.NoError(t, err, "a failed publish does not fail the write")

	msgs := b.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, ActionEntryRefreshed, msgs[0].Action)
	assert.Equal(t, "report_a", msgs[0].Key)
	assert.Equal(t, s.InstanceID(), msgs[0].Source)
}

func TestTieredStore_HandleMessageDropsLocalCopy(t *testing.T) {
	s, l1, l2 := newTestTieredStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, testEntry("report_a", "1.00", time.Now(), time.Minute)))

	s.HandleMessage(CacheMessage{Action: ActionVersionBumped, ReportType: "harvest"})
	assert.Equal(t, 1, l1.Count(), "unrelated messages are ignored")

	s.HandleMessage(CacheMessage{Action: ActionEntryRefreshed, Key: "report_a", Source: "other-instance"})
	assert.Equal(t, 0, l1.Count())
	assert.Equal(t, 1, l2.Count())
}

func TestTieredStore_IgnoresOwnRefresh(t *testing.T) {
	b := &recordingBroadcaster{}
	s, l1, _ := newTestTieredStore(t, WithBroadcaster(b), WithInstanceID("node-a"))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, testEntry("report_a", "1.00", time.Now(), time.Minute)))
	msgs := b.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "node-a", msgs[0].Source)

	// the broadcaster echoes the message back to its publisher
	s.HandleMessage(msgs[0])
	assert.Equal(t, 1, l1.Count(), "own refresh keeps the local copy")

	entry, err := s.Get(ctx, "report_a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	l1Hits, _, _, _ := s.GetStats()
	assert.Equal(t, int64(1), l1Hits)

	msgs[0].Source = "node-b"
	s.HandleMessage(msgs[0])
	assert.Equal(t, 0, l1.Count(), "a refresh from another instance drops it")
}

func TestTieredStore_DistinctInstanceIDs(t *testing.T) {
	a, _, _ := newTestTieredStore(t)
	b, _, _ := newTestTieredStore(t)
	assert.NotEmpty(t, a.InstanceID())
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())
}

func TestTieredStore_Delete(t *testing.T) {
	s, l1, l2 := newTestTieredStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, testEntry("report_a", "1.00", time.Now(), time.Minute)))
	require.NoError(t, s.Delete(ctx, "report_a"))

	assert.Equal(t, 0, l1.Count())
	assert.Equal(t, 0, l2.Count())
}
