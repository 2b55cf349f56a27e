package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to Metrics
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeForced = "forced"
)

// Metrics receives report cache instrumentation
type Metrics interface {
	RecordLookup(ctx context.Context, reportType report.ReportType, outcome string)
	RecordCompute(ctx context.Context, reportType report.ReportType, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, report.ReportType, string) {}

func (noopMetrics) RecordCompute(context.Context, report.ReportType, time.Duration, error) {}

// ReportCache is the read-through report cache. Concurrent misses for one
// key share a single computation. A computation is detached from the caller
// that started it, so an abandoned request still fills the cache for the
// next one, bounded by the compute timeout.
type ReportCache struct {
	store          Store
	ttl            time.Duration
	computeTimeout time.Duration
	now            func() time.Time
	metrics        Metrics
	logger         *zap.Logger

	group singleflight.Group

	// keys tracks the computations in flight per key; an entry is dropped
	// when its last computation finishes.
	keysMu sync.Mutex
	keys   map[string]*keyState
}

// keyState orders the writes of concurrent computations of one key. gen
// counts forced refreshes; a compute stores its result only if gen is still
// the value it started with, and the check and the write happen under mu.
type keyState struct {
	mu   sync.Mutex
	gen  atomic.Int64
	refs int
}

// ReportCacheOption configures a ReportCache
type ReportCacheOption func(*ReportCache)

// WithTTL sets how long computed entries are served
func WithTTL(ttl time.Duration) ReportCacheOption {
	return func(c *ReportCache) {
		c.ttl = ttl
	}
}

// WithComputeTimeout bounds a single computation
func WithComputeTimeout(d time.Duration) ReportCacheOption {
	return func(c *ReportCache) {
		c.computeTimeout = d
	}
}

// WithClock overrides the clock used to stamp entries
func WithClock(now func() time.Time) ReportCacheOption {
	return func(c *ReportCache) {
		c.now = now
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) ReportCacheOption {
	return func(c *ReportCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithReportCacheLogger sets the logger
func WithReportCacheLogger(logger *zap.Logger) ReportCacheOption {
	return func(c *ReportCache) {
		c.logger = logger
	}
}

// NewReportCache creates a report cache over store
func NewReportCache(store Store, opts ...ReportCacheOption) *ReportCache {
	c := &ReportCache{
		store:          store,
		ttl:            DefaultTTL,
		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
		metrics:        noopMetrics{},
		logger:         zap.NewNop(),
		keys:           make(map[string]*keyState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type computeResult struct {
	payload *report.Payload
}

// GetOrCompute implements report.Cache
func (c *ReportCache) GetOrCompute(
	ctx context.Context,
	reportType report.ReportType,
	params report.Params,
	version string,
	forceRefresh bool,
	compute report.ComputeFunc,
) (*report.Payload, report.ReportKey, error) {
	key, err := report.BuildKey(reportType, params, version)
	if err != nil {
		return nil, report.ReportKey{}, err
	}
	if compute == nil {
		return nil, key, shared.NewDomainError(shared.CodeComputeError, "no compute function for report")
	}

	if forceRefresh {
		c.metrics.RecordLookup(ctx, reportType, OutcomeForced)
		payload, err := c.refresh(ctx, key, compute)
		return payload, key, err
	}

	if entry := c.lookup(ctx, key); entry != nil {
		c.metrics.RecordLookup(ctx, reportType, OutcomeHit)
		return entry.Payload, key, nil
	}
	c.metrics.RecordLookup(ctx, reportType, OutcomeMiss)

	ch := c.group.DoChan(key.String(), func() (any, error) {
		state := c.acquire(key.String())
		defer c.release(key.String(), state)

		payload, err := c.computeAndStore(ctx, key, compute, state, state.gen.Load())
		return computeResult{payload: payload}, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, key, res.Err
		}
		return res.Val.(computeResult).payload, key, nil
	case <-ctx.Done():
		return nil, key, ctx.Err()
	}
}

// refresh recomputes unconditionally. It does not join an in-flight compute,
// because that one may have started before the data the caller wants to see.
func (c *ReportCache) refresh(ctx context.Context, key report.ReportKey, compute report.ComputeFunc) (*report.Payload, error) {
	state := c.acquire(key.String())
	gen := state.gen.Add(1)
	c.group.Forget(key.String())

	type outcome struct {
		payload *report.Payload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer c.release(key.String(), state)
		payload, err := c.computeAndStore(ctx, key, compute, state, gen)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup treats store failures as a miss
func (c *ReportCache) lookup(ctx context.Context, key report.ReportKey) *Entry {
	entry, err := c.store.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn("Report cache read failed, computing instead",
			zap.String("key", key.String()),
			zap.Error(err))
		return nil
	}
	if entry == nil || entry.Payload == nil || entry.IsExpired(c.now()) {
		return nil
	}
	return entry
}

func (c *ReportCache) computeAndStore(ctx context.Context, key report.ReportKey, compute report.ComputeFunc, state *keyState, gen int64) (payload *report.Payload, err error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = shared.WrapDomainError(shared.CodeComputeError, "report computation panicked", fmt.Errorf("%v", r))
			c.logger.Error("Panic in report computation",
				zap.String("key", key.String()),
				zap.Any("panic", r))
		}
		c.metrics.RecordCompute(ctx, key.Type(), time.Since(start), err)
	}()

	payload, err = compute(cctx)
	if err != nil {
		return nil, computeError(err)
	}
	if payload == nil {
		return nil, shared.NewDomainError(shared.CodeComputeError, "report computation returned no payload")
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.gen.Load() != gen {
		c.logger.Debug("Skipping store of superseded report",
			zap.String("key", key.String()))
		return payload, nil
	}

	entry := &Entry{
		Key:       key.String(),
		Payload:   payload,
		CreatedAt: c.now(),
		TTL:       c.ttl,
	}
	if err := c.store.Set(cctx, entry); err != nil {
		c.logger.Warn("Failed to store computed report",
			zap.String("key", key.String()),
			zap.Error(err))
	}
	return payload, nil
}

// acquire returns the state of key, registering one more computation on it
func (c *ReportCache) acquire(key string) *keyState {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	state, ok := c.keys[key]
	if !ok {
		state = &keyState{}
		c.keys[key] = state
	}
	state.refs++
	return state
}

// release drops the state of key once no computation uses it
func (c *ReportCache) release(key string, state *keyState) {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	state.refs--
	if state.refs == 0 && c.keys[key] == state {
		delete(c.keys, key)
	}
}

func (c *ReportCache) inFlightKeys() int {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	return len(c.keys)
}

// computeError keeps coded domain errors and wraps everything else
func computeError(err error) error {
	if shared.ErrorCode(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapDomainError(shared.CodeComputeError, "report computation timed out", err)
	}
	return shared.WrapDomainError(shared.CodeComputeError, "failed to compute report", err)
}

// Ensure ReportCache implements report.Cache
var _ report.Cache = (*ReportCache)(nil)
