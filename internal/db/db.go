package db

import (
	"context"
	_ "embed"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// PoolOptions sizes the pool for quote traffic. Every quote runs one short
// read-only transaction per candidate; feed syncs are the only writers and
// are serialized by the catalog.
type PoolOptions struct {
	MaxConns         int32
	StatementTimeout time.Duration
}

// DefaultPoolOptions suit a single API instance.
var DefaultPoolOptions = PoolOptions{
	MaxConns:         10,
	StatementTimeout: 2 * time.Second,
}

func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = DefaultPoolOptions.MaxConns
	}
	if opts.StatementTimeout <= 0 {
		opts.StatementTimeout = DefaultPoolOptions.StatementTimeout
	}
	cfg.MaxConns = opts.MaxConns
	// one warm connection keeps the first quote after idle off the dial path
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 10 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	params := cfg.ConnConfig.RuntimeParams
	params["application_name"] = "shippingrates-api"
	params["timezone"] = "UTC"
	ms := strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	params["statement_timeout"] = ms
	// a stalled feed sync must not hold carrier rows locked
	params["idle_in_transaction_session_timeout"] = ms
	return cfg, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
