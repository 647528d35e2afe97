package config

import (
	"flag"
	"fmt"
	"time"
)

// TransportKind selects which concrete transport.Provider cmd/podctl wires
// up: a gRPC stream to the radio-gateway process, or a WebSocket
// connection to it.
type TransportKind string

const (
	TransportGRPC      TransportKind = "grpc"
	TransportWebSocket TransportKind = "websocket"
)

// TransportConfig configures the radio-gateway client adapter.
type TransportConfig struct {
	Kind               TransportKind
	Address            string // host:port for gRPC, ws(s):// URL for WebSocket
	DialTimeout        time.Duration
	RequestTimeout     time.Duration
	MaxReconnectBackoff time.Duration
	Insecure           bool
}

// TransportFlagPointers holds transport flag values pending flag.Parse().
type TransportFlagPointers struct {
	kind                *string
	address             *string
	dialTimeoutMS       *int
	requestTimeoutMS    *int
	maxReconnectBackoff *int
	insecure            *bool
}

// RegisterTransportFlags registers radio-gateway transport flags.
func RegisterTransportFlags() *TransportFlagPointers {
	return &TransportFlagPointers{
		kind: flag.String("transport-kind",
			GetEnv("PODCTL_TRANSPORT_KIND", "grpc"),
			"Radio-gateway transport: grpc or websocket"),
		address: flag.String("transport-address",
			GetEnv("PODCTL_TRANSPORT_ADDRESS", "localhost:9443"),
			"Radio-gateway address (host:port for grpc, ws(s):// URL for websocket)"),
		dialTimeoutMS: flag.Int("transport-dial-timeout-ms",
			GetEnvInt("PODCTL_TRANSPORT_DIAL_TIMEOUT_MS", 5000),
			"Transport dial timeout in milliseconds"),
		requestTimeoutMS: flag.Int("transport-request-timeout-ms",
			GetEnvInt("PODCTL_TRANSPORT_REQUEST_TIMEOUT_MS", 30000),
			"Per-exchange response timeout in milliseconds"),
		maxReconnectBackoff: flag.Int("transport-max-reconnect-backoff-sec",
			GetEnvInt("PODCTL_TRANSPORT_MAX_RECONNECT_BACKOFF_SEC", 60),
			"Maximum reconnect backoff in seconds"),
		insecure: flag.Bool("transport-insecure",
			GetEnvBool("PODCTL_TRANSPORT_INSECURE", true),
			"Disable TLS on the radio-gateway connection"),
	}
}

// ToTransportConfig converts flag pointers to TransportConfig.
func (f *TransportFlagPointers) ToTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:                TransportKind(*f.kind),
		Address:             *f.address,
		DialTimeout:         time.Duration(*f.dialTimeoutMS) * time.Millisecond,
		RequestTimeout:      time.Duration(*f.requestTimeoutMS) * time.Millisecond,
		MaxReconnectBackoff: time.Duration(*f.maxReconnectBackoff) * time.Second,
		Insecure:            *f.insecure,
	}
}

// PostgresConfig holds the durable-repository connection configuration.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// ConnectionString builds a PostgreSQL connection string from the config.
func (c PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PostgresFlagPointers holds postgres flag values pending flag.Parse().
type PostgresFlagPointers struct {
	host               *string
	port               *int
	user               *string
	password           *string
	database           *string
	sslMode            *string
	maxConns           *int
	minConns           *int
	maxConnLifetimeMin *int
}

// RegisterPostgresFlags registers Postgres connection flags.
func RegisterPostgresFlags() *PostgresFlagPointers {
	return &PostgresFlagPointers{
		host: flag.String("postgres-host",
			GetEnv("PODCTL_POSTGRES_HOST", "localhost"),
			"PostgreSQL host"),
		port: flag.Int("postgres-port",
			GetEnvInt("PODCTL_POSTGRES_PORT", 5432),
			"PostgreSQL port"),
		user: flag.String("postgres-user",
			GetEnv("PODCTL_POSTGRES_USER", "podctl"),
			"PostgreSQL user"),
		password: flag.String("postgres-password",
			GetEnvOrConfig("PODCTL_POSTGRES_PASSWORD", "postgres_password", ""),
			"PostgreSQL password"),
		database: flag.String("postgres-database",
			GetEnv("PODCTL_POSTGRES_DATABASE", "podctl"),
			"PostgreSQL database name"),
		sslMode: flag.String("postgres-ssl-mode",
			GetEnv("PODCTL_POSTGRES_SSL_MODE", "disable"),
			"PostgreSQL SSL mode (disable, require, verify-ca, verify-full)"),
		maxConns: flag.Int("postgres-max-conns",
			GetEnvInt("PODCTL_POSTGRES_MAX_CONNS", 10),
			"PostgreSQL maximum pool connections"),
		minConns: flag.Int("postgres-min-conns",
			GetEnvInt("PODCTL_POSTGRES_MIN_CONNS", 2),
			"PostgreSQL minimum pool connections"),
		maxConnLifetimeMin: flag.Int("postgres-max-conn-lifetime-min",
			GetEnvInt("PODCTL_POSTGRES_MAX_CONN_LIFETIME_MIN", 60),
			"PostgreSQL maximum connection lifetime in minutes"),
	}
}

// ToPostgresConfig converts flag pointers to PostgresConfig.
func (f *PostgresFlagPointers) ToPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            *f.host,
		Port:            *f.port,
		User:            *f.user,
		Password:        *f.password,
		Database:        *f.database,
		SSLMode:         *f.sslMode,
		MaxConns:        int32(*f.maxConns),
		MinConns:        int32(*f.minConns),
		MaxConnLifetime: time.Duration(*f.maxConnLifetimeMin) * time.Minute,
	}
}

// RedisConfig holds the optional secondary cache-tier configuration. When
// Enabled is false, repository/postgres runs with its in-process LRU only;
// Redis is for deployments where more than one controller process shares
// the same radio-gateway.
type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
	TTL        time.Duration
}

// RedisFlagPointers holds redis flag values pending flag.Parse().
type RedisFlagPointers struct {
	enabled    *bool
	host       *string
	port       *int
	password   *string
	db         *int
	tlsEnabled *bool
	ttlSec     *int
}

// RegisterRedisFlags registers the optional Redis cache-tier flags.
func RegisterRedisFlags() *RedisFlagPointers {
	return &RedisFlagPointers{
		enabled: flag.Bool("redis-enable",
			GetEnvBool("PODCTL_REDIS_ENABLE", false),
			"Enable the Redis secondary cache tier"),
		host: flag.String("redis-host",
			GetEnv("PODCTL_REDIS_HOST", "localhost"),
			"Redis host"),
		port: flag.Int("redis-port",
			GetEnvInt("PODCTL_REDIS_PORT", 6379),
			"Redis port"),
		password: flag.String("redis-password",
			GetEnvOrConfig("PODCTL_REDIS_PASSWORD", "redis_password", ""),
			"Redis password"),
		db: flag.Int("redis-db-number",
			GetEnvInt("PODCTL_REDIS_DB_NUMBER", 0),
			"Redis database number"),
		tlsEnabled: flag.Bool("redis-tls-enable",
			GetEnvBool("PODCTL_REDIS_TLS_ENABLE", false),
			"Enable TLS for the Redis connection"),
		ttlSec: flag.Int("redis-ttl-sec",
			GetEnvInt("PODCTL_REDIS_TTL_SEC", 300),
			"Redis cache-tier entry TTL in seconds"),
	}
}

// ToRedisConfig converts flag pointers to RedisConfig.
func (f *RedisFlagPointers) ToRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:    *f.enabled,
		Host:       *f.host,
		Port:       *f.port,
		Password:   *f.password,
		DB:         *f.db,
		TLSEnabled: *f.tlsEnabled,
		TTL:        time.Duration(*f.ttlSec) * time.Second,
	}
}

// CacheConfig sizes the in-process read-through LRU every repository/postgres
// instance runs in front of Postgres.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// CacheFlagPointers holds cache flag values pending flag.Parse().
type CacheFlagPointers struct {
	size  *int
	ttlMS *int
}

// RegisterCacheFlags registers the in-process cache sizing flags.
func RegisterCacheFlags() *CacheFlagPointers {
	return &CacheFlagPointers{
		size: flag.Int("cache-size",
			GetEnvInt("PODCTL_CACHE_SIZE", 256),
			"Maximum number of pod entries held in the in-process cache"),
		ttlMS: flag.Int("cache-ttl-ms",
			GetEnvInt("PODCTL_CACHE_TTL_MS", 60000),
			"In-process cache entry TTL in milliseconds"),
	}
}

// ToCacheConfig converts flag pointers to CacheConfig.
func (f *CacheFlagPointers) ToCacheConfig() CacheConfig {
	return CacheConfig{
		Size: *f.size,
		TTL:  time.Duration(*f.ttlMS) * time.Millisecond,
	}
}

// MetricsConfig configures the OTel metrics exporter.
type MetricsConfig struct {
	Enabled          bool
	OTLPEndpoint     string
	ExportInterval   time.Duration
	ServiceName      string
	ServiceVersion   string
}

// MetricsFlagPointers holds metrics flag values pending flag.Parse().
type MetricsFlagPointers struct {
	enabled        *bool
	host           *string
	port           *int
	intervalMS     *int
	serviceName    *string
	serviceVersion *string
}

// RegisterMetricsFlags registers OTel metrics flags. defaultServiceName
// lets each binary under cmd/ set its own otel service.name default.
func RegisterMetricsFlags(defaultServiceName string) *MetricsFlagPointers {
	return &MetricsFlagPointers{
		enabled: flag.Bool("metrics-enable",
			GetEnvBool("PODCTL_METRICS_ENABLE", true),
			"Enable OpenTelemetry metrics export"),
		host: flag.String("metrics-otel-collector-host",
			GetEnv("PODCTL_METRICS_OTEL_COLLECTOR_HOST", "localhost"),
			"OpenTelemetry collector host"),
		port: flag.Int("metrics-otel-collector-port",
			GetEnvInt("PODCTL_METRICS_OTEL_COLLECTOR_PORT", 4317),
			"OpenTelemetry collector port"),
		intervalMS: flag.Int("metrics-otel-export-interval-ms",
			GetEnvInt("PODCTL_METRICS_OTEL_EXPORT_INTERVAL_MS", 6000),
			"OpenTelemetry export interval in milliseconds"),
		serviceName: flag.String("metrics-service-name",
			GetEnv("PODCTL_METRICS_SERVICE_NAME", defaultServiceName),
			"Service name reported to OpenTelemetry"),
		serviceVersion: flag.String("service-version",
			GetEnv("PODCTL_SERVICE_VERSION", "unknown"),
			"Service version reported to OpenTelemetry"),
	}
}

// ToMetricsConfig converts flag pointers to MetricsConfig.
func (f *MetricsFlagPointers) ToMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:        *f.enabled,
		OTLPEndpoint:   fmt.Sprintf("%s:%d", *f.host, *f.port),
		ExportInterval: time.Duration(*f.intervalMS) * time.Millisecond,
		ServiceName:    *f.serviceName,
		ServiceVersion: *f.serviceVersion,
	}
}
