package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tenor/internal/common"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens the connection pool. The vector extension is created on a
// plain connection first so pgvector types can be registered on every pooled one.
func NewPool(ctx context.Context, config *common.PostgresConfig, logger arbor.ILogger) (*pgxpool.Pool, error) {
	if config.DSN == "" {
		return nil, common.ValidationError("postgres_connect", "storage.postgres.dsn is required")
	}

	bootstrap, err := pgx.Connect(ctx, config.DSN)
	if err != nil {
		return nil, common.DatabaseError("postgres_connect", err, "failed to connect")
	}
	_, err = bootstrap.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	closeErr := bootstrap.Close(ctx)
	if err != nil {
		return nil, common.DatabaseError("postgres_connect", err, "failed to create vector extension")
	}
	if closeErr != nil {
		logger.Warn().Err(closeErr).Msg("Failed to close bootstrap connection")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, common.ValidationError("postgres_connect", "failed to parse database config: %v", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, common.DatabaseError("postgres_connect", err, "failed to create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, common.DatabaseError("postgres_connect", err, "ping failed")
	}

	logger.Debug().Int32("max_conns", poolConfig.MaxConns).Msg("Postgres pool initialized")
	return pool, nil
}

// mapError converts pgx errors into typed errors
func mapError(op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NotFoundError(op, format, args...)
	}
	if common.KindOf(err) != "" {
		return err
	}
	return common.DatabaseError(op, err, format, args...)
}

// inTx runs fn in one transaction, rolling back on error
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
