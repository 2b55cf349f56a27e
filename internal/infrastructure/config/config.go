// Package config loads the report engine configuration from config.toml,
// an optional .env file and ORCHARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ORCHARD_REPORT_CACHE_TTL
const EnvPrefix = "ORCHARD"

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Report    ReportConfig    `mapstructure:"report"`
	Export    ExportConfig    `mapstructure:"export"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Warmup    WarmupConfig    `mapstructure:"warmup"`
}

// AppConfig names the deployment
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env" validate:"oneof=development testing staging production"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether the app runs in production
func (a *AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds the farm ledger connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the postgres connection URL with escaped credentials
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig holds the shared cache connection
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds bearer token settings
type JWTConfig struct {
	Secret                string        `mapstructure:"secret"`
	Issuer                string        `mapstructure:"issuer"`
	AccessTokenExpiration time.Duration `mapstructure:"access_token_expiration"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
}

// ReportConfig holds report cache and aggregation settings
type ReportConfig struct {
	CacheBackend        string            `mapstructure:"cache_backend" validate:"oneof=memory redis tiered"`
	CacheTTL            time.Duration     `mapstructure:"cache_ttl" validate:"gt=0"`
	L1TTL               time.Duration     `mapstructure:"l1_ttl"`
	ComputeTimeout      time.Duration     `mapstructure:"compute_timeout" validate:"gt=0"`
	ForceRefreshEnabled bool              `mapstructure:"force_refresh_enabled"`
	AllowMemoryFallback bool              `mapstructure:"allow_memory_fallback"`
	SharedVersions      bool              `mapstructure:"shared_versions"` // share version bumps through Redis
	SchemaVersions      map[string]string `mapstructure:"schema_versions"`
	Currency            string            `mapstructure:"currency" validate:"len=3"`
	LoadWorkers         int               `mapstructure:"load_workers" validate:"gte=1,lte=64"`
}

// ExportConfig holds export pipeline settings
type ExportConfig struct {
	PDFEnabled    bool          `mapstructure:"pdf_enabled"`
	ChromeURL     string        `mapstructure:"chrome_url"` // remote DevTools websocket; empty starts a local browser
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	Title         string        `mapstructure:"title"`
}

// StorageConfig holds artifact storage settings
type StorageConfig struct {
	Type           string `mapstructure:"type" validate:"oneof=none filesystem s3"`
	LocalPath      string `mapstructure:"local_path"`
	S3Bucket       string `mapstructure:"s3_bucket" validate:"required_if=Type s3"`
	S3Region       string `mapstructure:"s3_region"`
	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3AccessKey    string `mapstructure:"s3_access_key"`
	S3SecretKey    string `mapstructure:"s3_secret_key"`
	S3Prefix       string `mapstructure:"s3_prefix"`
	S3UsePathStyle bool   `mapstructure:"s3_use_path_style"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"` // plaintext gRPC, development only
	TracesExporter    string        `mapstructure:"traces_exporter" validate:"oneof=otlp stdout"`
	MetricsExporter   string        `mapstructure:"metrics_exporter" validate:"oneof=otlp prometheus stdout none"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"` // bridge zap to the OTLP log exporter
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// WarmupConfig holds the scheduled cache warmer settings
type WarmupConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	OrchardIDs []string      `mapstructure:"orchard_ids"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// defaults registers every key with viper, which is also what makes
// AutomaticEnv see keys that have no config file entry.
var defaults = map[string]any{
	"app.name": "orchard-reports",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             "postgres",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "orchard",
	"database.sslmode":            "disable",
	"database.sqlite_path":        "orchard.db",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret":                  "",
	"jwt.issuer":                  "orchard-reports",
	"jwt.access_token_expiration": 15 * time.Minute,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":       15 * time.Second,
	"http.write_timeout":      60 * time.Second, // exports may take a while
	"http.idle_timeout":       60 * time.Second,
	"http.shutdown_timeout":   10 * time.Second,
	"http.max_header_bytes":   1 << 20,
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID"},
	"http.trusted_proxies":    []string{},

	"report.cache_backend":         "memory",
	"report.cache_ttl":             30 * time.Second,
	"report.l1_ttl":                5 * time.Second,
	"report.compute_timeout":       30 * time.Second,
	"report.force_refresh_enabled": true,
	"report.allow_memory_fallback": true,
	"report.shared_versions":       false,
	"report.schema_versions":       map[string]string{},
	"report.currency":              "USD",
	"report.load_workers":          4,

	"export.pdf_enabled":    false,
	"export.chrome_url":     "",
	"export.render_timeout": 30 * time.Second,
	"export.title":          "Orchard report",

	"storage.type":              "none",
	"storage.local_path":        "./exports",
	"storage.s3_bucket":         "",
	"storage.s3_region":         "us-east-1",
	"storage.s3_endpoint":       "",
	"storage.s3_access_key":     "",
	"storage.s3_secret_key":     "",
	"storage.s3_prefix":         "",
	"storage.s3_use_path_style": false,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "orchard-reports",
	"telemetry.insecure":                false,
	"telemetry.traces_exporter":         "otlp",
	"telemetry.metrics_exporter":        "otlp",
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.logs_enabled":            false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,

	"warmup.enabled":     false,
	"warmup.schedule":    "*/15 * * * *",
	"warmup.orchard_ids": []string{},
	"warmup.timeout":     2 * time.Minute,
}

// Load reads configuration with ".env" as the env file. Sources, highest
// priority first:
//  1. ORCHARD_* environment variables
//  2. the .env file, which never overrides variables already set
//  3. config.toml in ., ./config or /etc/orchard
//  4. built-in defaults
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit .env path. An empty path skips the file.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read env file: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, dir := range []string{".", "./config", "/etc/orchard"} {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// report errors by config key instead of Go field name
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("mapstructure"); name != "" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return validate
}

func (c *Config) validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s is invalid (%s=%s): %v", configKey(fe.Namespace()), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Report.CacheBackend == "tiered" && c.Report.L1TTL > c.Report.CacheTTL {
		return fmt.Errorf("report.l1_ttl (%s) cannot exceed report.cache_ttl (%s)", c.Report.L1TTL, c.Report.CacheTTL)
	}
	for name, version := range c.Report.SchemaVersions {
		if strings.TrimSpace(version) == "" {
			return fmt.Errorf("report.schema_versions.%s cannot be empty", name)
		}
	}

	if c.App.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

func (c *Config) validateProduction() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret is required in production")
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.Database.Driver == "postgres" && c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.Driver == "postgres" && c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case slices.Contains(c.HTTP.CORSAllowOrigins, "*"):
		return errors.New("http.cors_allow_origins cannot be '*' in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be false in production, traces would carry query values")
	}
	return nil
}

// configKey drops the root of a validator namespace: Config.report.cache_ttl
// becomes report.cache_ttl.
func configKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
