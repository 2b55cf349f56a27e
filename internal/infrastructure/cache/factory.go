package cache

import (
	"context"
	"fmt"

	"github.com/orchard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Cache backend names accepted in report.cache_backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// Backend bundles the pieces built from configuration. Redis and Broadcaster
// are nil when the active backend does not use Redis.
type Backend struct {
	Name        string
	Store       Store
	Versions    *VersionRegistry
	Redis       *RedisStore
	Broadcaster *RedisBroadcaster
	tiered      *TieredStore
	memory      *MemoryStore
	logger      *zap.Logger
}

// NewBackendFromConfig creates the report store and version registry selected
// by cfg. When Redis is unreachable it falls back to the memory store if
// report.allow_memory_fallback is set.
func NewBackendFromConfig(reportCfg config.ReportConfig, redisCfg config.RedisConfig, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{Name: reportCfg.CacheBackend, logger: logger}

	if reportCfg.CacheBackend == BackendRedis || reportCfg.CacheBackend == BackendTiered {
		redisStore, err := NewRedisStore(RedisConfig{
			Host:     redisCfg.Host,
			Port:     redisCfg.Port,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}, WithRedisLogger(logger))
		if err != nil {
			if !reportCfg.AllowMemoryFallback {
				return nil, fmt.Errorf("Redis required for %s report cache but unavailable: %w", reportCfg.CacheBackend, err)
			}
			logger.Warn("Redis unavailable, falling back to in-memory report cache. "+
				"Cached reports will not be shared between instances.",
				zap.Error(err))
			b.Name = BackendMemory
		} else {
			b.Redis = redisStore
			b.Broadcaster = NewRedisBroadcaster(redisStore.Client(), WithBroadcastLogger(logger))
		}
	}

	switch b.Name {
	case BackendRedis:
		b.Store = b.Redis
	case BackendTiered:
		b.memory = NewMemoryStore(WithMemoryLogger(logger))
		b.tiered = NewTieredStore(b.memory, b.Redis,
			WithL1TTL(reportCfg.L1TTL),
			WithBroadcaster(b.Broadcaster),
			WithTieredLogger(logger),
		)
		b.Store = b.tiered
	default:
		b.Name = BackendMemory
		b.memory = NewMemoryStore(WithMemoryLogger(logger))
		b.Store = b.memory
	}

	versionOpts := []VersionRegistryOption{WithVersionLogger(logger)}
	if b.Redis != nil && reportCfg.SharedVersions {
		versionOpts = append(versionOpts,
			WithVersionCounter(NewRedisVersionCounter(b.Redis)),
			WithVersionBroadcaster(b.Broadcaster),
		)
	}
	versions, err := NewVersionRegistry(reportCfg.SchemaVersions, versionOpts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Versions = versions

	logger.Info("Report cache backend ready", zap.String("backend", b.Name))
	return b, nil
}

// Start loads shared version counters and, when Redis is in use, subscribes
// to cache messages from other instances. The subscription runs until ctx is
// cancelled or Close is called.
func (b *Backend) Start(ctx context.Context) error {
	if err := b.Versions.Sync(ctx); err != nil {
		return err
	}
	if b.Broadcaster == nil {
		return nil
	}

	handlers := []MessageHandler{b.Versions.HandleMessage}
	if b.tiered != nil {
		handlers = append(handlers, b.tiered.HandleMessage)
	}
	go func() {
		if err := b.Broadcaster.Subscribe(ctx, handlers...); err != nil && ctx.Err() == nil {
			b.logger.Error("Report cache subscription ended", zap.Error(err))
		}
	}()
	return nil
}

// Close releases every resource the backend owns
func (b *Backend) Close() error {
	var lastErr error
	if b.Broadcaster != nil {
		if err := b.Broadcaster.Close(); err != nil {
			lastErr = err
		}
	}
	if b.memory != nil {
		if err := b.memory.Close(); err != nil {
			lastErr = err
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
