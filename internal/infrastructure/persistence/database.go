package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/orchard/backend/internal/infrastructure/config"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/infrastructure/persistence/models"
	"github.com/orchard/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is the farm ledger connection.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// Option configures NewDatabase.
type Option func(*options)

type options struct {
	log       *zap.Logger
	logLevel  gormlogger.LogLevel
	slowQuery time.Duration
	tracing   *telemetry.DBTracingPlugin
}

// WithLogger routes GORM logs through zap at level.
func WithLogger(l *zap.Logger, level gormlogger.LogLevel) Option {
	return func(o *options) {
		o.log = l
		o.logLevel = level
	}
}

// WithSlowQueryThreshold sets the duration above which queries log as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(o *options) { o.slowQuery = d }
}

// WithTracing installs the query tracing plugin.
func WithTracing(plugin *telemetry.DBTracingPlugin) Option {
	return func(o *options) { o.tracing = plugin }
}

// NewDatabase opens and pings a connection for the configured driver.
// Prepared statements are cached for postgres only.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	o := options{log: zap.NewNop(), logLevel: gormlogger.Silent, slowQuery: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(o.log, o.logLevel, logger.WithSlowThreshold(o.slowQuery)),
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.Driver != "sqlite",
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if o.tracing != nil {
		if err := o.tracing.Register(db); err != nil {
			return nil, fmt.Errorf("register query tracing: %w", err)
		}
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Database{DB: db, sql: pool}, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates the farm tables.
func (d *Database) Migrate(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(models.FarmModels()...); err != nil {
		return fmt.Errorf("migrate farm tables: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Stats reports connection pool usage.
func (d *Database) Stats() sql.DBStats {
	return d.sql.Stats()
}

// Close releases every pooled connection.
func (d *Database) Close() error {
	return d.sql.Close()
}
