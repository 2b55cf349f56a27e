package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultSchemaVersion is used for report types without a configured version
const DefaultSchemaVersion = "v1"

// VersionCounter stores bump counters shared between instances
type VersionCounter interface {
	Incr(ctx context.Context, reportType report.ReportType) (int64, error)
	Load(ctx context.Context) (map[report.ReportType]int64, error)
}

// VersionRegistry resolves the effective schema version of each report type.
// The effective version is the configured base, suffixed with ".<n>" once the
// type has been bumped n times. Versions only move forward.
type VersionRegistry struct {
	mu          sync.RWMutex
	base        map[report.ReportType]string
	bumps       map[report.ReportType]int64
	counter     VersionCounter
	broadcaster Broadcaster
	logger      *zap.Logger
}

// VersionRegistryOption configures a VersionRegistry
type VersionRegistryOption func(*VersionRegistry)

// WithVersionCounter shares bump counters through counter
func WithVersionCounter(counter VersionCounter) VersionRegistryOption {
	return func(r *VersionRegistry) {
		r.counter = counter
	}
}

// WithVersionBroadcaster announces bumps to other instances
func WithVersionBroadcaster(b Broadcaster) VersionRegistryOption {
	return func(r *VersionRegistry) {
		r.broadcaster = b
	}
}

// WithVersionLogger sets the logger
func WithVersionLogger(logger *zap.Logger) VersionRegistryOption {
	return func(r *VersionRegistry) {
		r.logger = logger
	}
}

// NewVersionRegistry creates a registry. base maps report type names to their
// configured schema version; unknown names are rejected.
func NewVersionRegistry(base map[string]string, opts ...VersionRegistryOption) (*VersionRegistry, error) {
	r := &VersionRegistry{
		base:   make(map[report.ReportType]string),
		bumps:  make(map[report.ReportType]int64),
		logger: zap.NewNop(),
	}
	for _, t := range report.AllReportTypes() {
		r.base[t] = DefaultSchemaVersion
	}
	for name, version := range base {
		t, err := report.ParseReportType(name)
		if err != nil {
			return nil, fmt.Errorf("schema version for %q: %w", name, err)
		}
		if version == "" {
			return nil, fmt.Errorf("schema version for %q is empty", name)
		}
		r.base[t] = version
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Version returns the effective version of reportType
func (r *VersionRegistry) Version(ctx context.Context, reportType report.ReportType) (string, error) {
	if !reportType.IsValid() {
		return "", shared.InvalidParameterf("unknown report type %q", reportType)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.effective(reportType), nil
}

// Bump advances reportType to a new version and returns it
func (r *VersionRegistry) Bump(ctx context.Context, reportType report.ReportType) (string, error) {
	if !reportType.IsValid() {
		return "", shared.InvalidParameterf("unknown report type %q", reportType)
	}

	var next int64
	if r.counter != nil {
		n, err := r.counter.Incr(ctx, reportType)
		if err != nil {
			return "", fmt.Errorf("failed to increment schema version: %w", err)
		}
		next = n
	}

	r.mu.Lock()
	if r.counter == nil {
		next = r.bumps[reportType] + 1
	}
	r.advance(reportType, next)
	version := r.effective(reportType)
	r.mu.Unlock()

	if r.broadcaster != nil {
		err := r.broadcaster.Publish(ctx, CacheMessage{
			Action:     ActionVersionBumped,
			ReportType: reportType.String(),
			Sequence:   next,
		})
		if err != nil {
			r.logger.Warn("Failed to publish schema version bump",
				zap.String("report_type", reportType.String()),
				zap.Error(err))
		}
	}

	r.logger.Info("Schema version bumped",
		zap.String("report_type", reportType.String()),
		zap.String("version", version))
	return version, nil
}

// Sync loads the shared counters. Call once at startup.
func (r *VersionRegistry) Sync(ctx context.Context) error {
	if r.counter == nil {
		return nil
	}
	counts, err := r.counter.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schema versions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, n := range counts {
		if t.IsValid() {
			r.advance(t, n)
		}
	}
	return nil
}

// HandleMessage applies a bump announced by another instance
func (r *VersionRegistry) HandleMessage(msg CacheMessage) {
	if msg.Action != ActionVersionBumped {
		return
	}
	t := report.ReportType(msg.ReportType)
	if !t.IsValid() {
		return
	}
	r.mu.Lock()
	r.advance(t, msg.Sequence)
	r.mu.Unlock()
}

// advance never moves a counter backwards, so late or duplicate messages are harmless
func (r *VersionRegistry) advance(t report.ReportType, n int64) {
	if n > r.bumps[t] {
		r.bumps[t] = n
	}
}

func (r *VersionRegistry) effective(t report.ReportType) string {
	n := r.bumps[t]
	if n == 0 {
		return r.base[t]
	}
	return r.base[t] + "." + strconv.FormatInt(n, 10)
}

// Ensure VersionRegistry implements VersionSource
var _ report.VersionSource = (*VersionRegistry)(nil)

// RedisVersionCounter keeps bump counters in a Redis hash
type RedisVersionCounter struct {
	store   *RedisStore
	hashKey string
}

// NewRedisVersionCounter creates a counter sharing the store's connection and prefix
func NewRedisVersionCounter(store *RedisStore) *RedisVersionCounter {
	return &RedisVersionCounter{
		store:   store,
		hashKey: store.keyPrefix + "report:versions",
	}
}

// Incr atomically increments the counter of reportType
func (c *RedisVersionCounter) Incr(ctx context.Context, reportType report.ReportType) (int64, error) {
	return c.store.client.HIncrBy(ctx, c.hashKey, reportType.String(), 1).Result()
}

// Load returns every stored counter
func (c *RedisVersionCounter) Load(ctx context.Context) (map[report.ReportType]int64, error) {
	raw, err := c.store.client.HGetAll(ctx, c.hashKey).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[report.ReportType]int64, len(raw))
	for name, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[report.ReportType(name)] = n
	}
	return counts, nil
}

// Ensure RedisVersionCounter implements VersionCounter
var _ VersionCounter = (*RedisVersionCounter)(nil)
