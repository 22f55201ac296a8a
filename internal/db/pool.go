package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Pool struct {
	*pgxpool.Pool
	log *zap.Logger
}

func NewPool(ctx context.Context, databaseURL string, maxConns int32, log *zap.Logger) (*Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	log.Info("Connected to Postgres", zap.Int32("max_conns", config.MaxConns))
	return &Pool{Pool: pool, log: log}, nil
}

func (p *Pool) Close() {
	p.Pool.Close()
}
