// Package postgres implements repository.Repository over a durable
// exchange_results/pods pair of tables, fronted by an in-process expirable
// LRU read-through cache and, optionally, a Redis secondary cache tier for
// deployments where more than one controller process shares the same
// radio-gateway.
package postgres

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/strandhealth/podctl/internal/config"
	"github.com/strandhealth/podctl/internal/pod"
)

// Repository is the durable repository.Repository adapter.
type Repository struct {
	pool   *pgxpool.Pool
	cache  *expirable.LRU[uint32, pod.ExchangeResult]
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Postgres, validates the connection, ensures the schema
// exists, and wires the in-process cache plus (if redisCfg.Enabled) the
// Redis secondary tier.
func New(ctx context.Context, pgCfg config.PostgresConfig, cacheCfg config.CacheConfig, redisCfg config.RedisConfig, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(pgCfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	poolConfig.MaxConns = pgCfg.MaxConns
	poolConfig.MinConns = pgCfg.MinConns
	poolConfig.MaxConnLifetime = pgCfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	r := &Repository{
		pool:   pool,
		cache:  expirable.NewLRU[uint32, pod.ExchangeResult](cacheCfg.Size, nil, cacheCfg.TTL),
		ttl:    redisCfg.TTL,
		logger: logger,
	}

	if redisCfg.Enabled {
		redisOpts := &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}
		if redisCfg.TLSEnabled {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		redisPingCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		if err := redisClient.Ping(redisPingCtx).Err(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		r.redis = redisClient
	}

	logger.Info("postgres repository connected",
		slog.String("host", pgCfg.Host),
		slog.String("database", pgCfg.Database),
		slog.Bool("redis_enabled", redisCfg.Enabled),
	)

	return r, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS exchange_results (
	id BIGSERIAL PRIMARY KEY,
	radio_address BIGINT NOT NULL,
	request_time TIMESTAMPTZ NOT NULL,
	result_time TIMESTAMPTZ NOT NULL,
	success BOOLEAN NOT NULL,
	exception TEXT,
	basal_schedule JSONB,
	response_fields JSONB
);

CREATE INDEX IF NOT EXISTS idx_exchange_results_radio_address
	ON exchange_results (radio_address, result_time DESC);

CREATE TABLE IF NOT EXISTS pods (
	radio_address BIGINT PRIMARY KEY,
	request_time TIMESTAMPTZ NOT NULL,
	result_time TIMESTAMPTZ NOT NULL,
	success BOOLEAN NOT NULL,
	exception TEXT,
	basal_schedule JSONB,
	response_fields JSONB
);
`)
	return err
}

// Close releases the connection pool (and the Redis client, if wired).
func (r *Repository) Close() {
	r.pool.Close()
	if r.redis != nil {
		_ = r.redis.Close()
	}
	r.logger.Info("postgres repository closed")
}

// Healthy reports whether the Postgres connection is reachable.
func (r *Repository) Healthy(ctx context.Context) bool {
	return r.pool.Ping(ctx) == nil
}

// Save persists result exactly once: an append-only exchange_results row
// plus an upserted pods snapshot, in a single transaction, then refreshes
// every cache tier.
func (r *Repository) Save(ctx context.Context, state *pod.State, result pod.ExchangeResult) error {
	schedule, err := marshalOrNil(result.BasalSchedule)
	if err != nil {
		return fmt.Errorf("failed to marshal basal schedule: %w", err)
	}
	fields, err := marshalOrNil(result.ResponseFields)
	if err != nil {
		return fmt.Errorf("failed to marshal response fields: %w", err)
	}
	var exceptionText *string
	if result.Exception != nil {
		msg := result.Exception.Error()
		exceptionText = &msg
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO exchange_results (radio_address, request_time, result_time, success, exception, basal_schedule, response_fields)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, state.RadioAddress, result.RequestTime, result.ResultTime, result.Success, exceptionText, schedule, fields); err != nil {
		return fmt.Errorf("failed to insert exchange result: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO pods (radio_address, request_time, result_time, success, exception, basal_schedule, response_fields)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (radio_address) DO UPDATE SET
	request_time = EXCLUDED.request_time,
	result_time = EXCLUDED.result_time,
	success = EXCLUDED.success,
	exception = EXCLUDED.exception,
	basal_schedule = EXCLUDED.basal_schedule,
	response_fields = EXCLUDED.response_fields
`, state.RadioAddress, result.RequestTime, result.ResultTime, result.Success, exceptionText, schedule, fields); err != nil {
		return fmt.Errorf("failed to upsert pod snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exchange result: %w", err)
	}

	r.cache.Add(state.RadioAddress, result)
	if r.redis != nil {
		r.writeThroughRedis(ctx, state.RadioAddress, result)
	}

	return nil
}

// LatestResult returns the most recently saved result for radioAddress,
// checking the in-process LRU, then Redis (if enabled), then Postgres.
func (r *Repository) LatestResult(ctx context.Context, radioAddress uint32) (pod.ExchangeResult, bool, error) {
	if result, ok := r.cache.Get(radioAddress); ok {
		return result, true, nil
	}

	if r.redis != nil {
		if result, ok := r.readThroughRedis(ctx, radioAddress); ok {
			r.cache.Add(radioAddress, result)
			return result, true, nil
		}
	}

	row := r.pool.QueryRow(ctx, `
SELECT request_time, result_time, success, exception, basal_schedule, response_fields
FROM pods WHERE radio_address = $1
`, radioAddress)

	var result pod.ExchangeResult
	var exceptionText *string
	var schedule, fields []byte
	if err := row.Scan(&result.RequestTime, &result.ResultTime, &result.Success, &exceptionText, &schedule, &fields); err != nil {
		if err == pgx.ErrNoRows {
			return pod.ExchangeResult{}, false, nil
		}
		return pod.ExchangeResult{}, false, fmt.Errorf("failed to query pod snapshot: %w", err)
	}
	if exceptionText != nil {
		result.Exception = fmt.Errorf("%s", *exceptionText)
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &result.BasalSchedule); err != nil {
			return pod.ExchangeResult{}, false, fmt.Errorf("failed to unmarshal basal schedule: %w", err)
		}
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &result.ResponseFields); err != nil {
			return pod.ExchangeResult{}, false, fmt.Errorf("failed to unmarshal response fields: %w", err)
		}
	}

	r.cache.Add(radioAddress, result)
	if r.redis != nil {
		r.writeThroughRedis(ctx, radioAddress, result)
	}
	return result, true, nil
}

type redisResult struct {
	RequestTime    time.Time      `json:"request_time"`
	ResultTime     time.Time      `json:"result_time"`
	Success        bool           `json:"success"`
	Exception      string         `json:"exception,omitempty"`
	BasalSchedule  []float64      `json:"basal_schedule,omitempty"`
	ResponseFields map[string]any `json:"response_fields,omitempty"`
}

func (r *Repository) writeThroughRedis(ctx context.Context, radioAddress uint32, result pod.ExchangeResult) {
	payload := redisResult{
		RequestTime:    result.RequestTime,
		ResultTime:     result.ResultTime,
		Success:        result.Success,
		BasalSchedule:  result.BasalSchedule,
		ResponseFields: result.ResponseFields,
	}
	if result.Exception != nil {
		payload.Exception = result.Exception.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to marshal redis cache entry", "error", err)
		return
	}
	key := redisKey(radioAddress)
	if err := r.redis.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("failed to write redis cache entry", "key", key, "error", err)
	}
}

func (r *Repository) readThroughRedis(ctx context.Context, radioAddress uint32) (pod.ExchangeResult, bool) {
	data, err := r.redis.Get(ctx, redisKey(radioAddress)).Bytes()
	if err != nil {
		return pod.ExchangeResult{}, false
	}
	var payload redisResult
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("failed to unmarshal redis cache entry", "error", err)
		return pod.ExchangeResult{}, false
	}
	result := pod.ExchangeResult{
		RequestTime:    payload.RequestTime,
		ResultTime:     payload.ResultTime,
		Success:        payload.Success,
		BasalSchedule:  payload.BasalSchedule,
		ResponseFields: payload.ResponseFields,
	}
	if payload.Exception != "" {
		result.Exception = fmt.Errorf("%s", payload.Exception)
	}
	return result, true
}

func redisKey(radioAddress uint32) string {
	return fmt.Sprintf("podctl:pod:%d", radioAddress)
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case []float64:
		if len(vv) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(vv) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
