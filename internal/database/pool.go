// Package database owns the single shared resource of the core: the
// Postgres connection pool (spec §5). Every mutating path runs inside one
// transaction acquired from this pool for the lifetime of the request.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stustapay/core/internal/config"
)

// New builds and verifies a connection pool from the typed database
// config, replacing the teacher's os.Getenv("DATABASE_URL") lookup.
func New(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database.url: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO public")
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Println("database connection pool initialized")
	return pool, nil
}

// WithTx runs fn inside a transaction at the given isolation level,
// committing on success and rolling back on any returned error or panic.
// Order confirmation and close-out must pass pgx.RepeatableRead per
// spec §5's concurrency contract; read-only list endpoints pass
// pgx.ReadCommitted.
func WithTx(ctx context.Context, pool *pgxpool.Pool, isoLevel pgx.TxIsoLevel, fn func(tx pgx.Tx) error) (err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}

// WithReadOnlyTx is the read_only=true variant of the request-scoped
// transaction wrapper named in spec §9.
func WithReadOnlyTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// NotifyBon fires the NOTIFY bon channel with the order id as payload,
// consumed by the external bon renderer (spec §6).
func NotifyBon(ctx context.Context, tx pgx.Tx, orderID int64) error {
	_, err := tx.Exec(ctx, "SELECT pg_notify('bon', $1)", fmt.Sprintf("%d", orderID))
	if err != nil {
		return fmt.Errorf("notify bon: %w", err)
	}
	return nil
}
