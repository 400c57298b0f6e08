package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/mysql"
	"github.com/velmie/txoutbox/postgres"
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
	extraDBConns   = 4
)

// target is one database under test.
type target struct {
	consumer outbox.Consumer
	capture  func(ctx context.Context, occurrences []outbox.Occurrence) error
	reset    func(ctx context.Context) error
	close    func()
}

func parseDriver(value string) (string, error) {
	switch value {
	case driverMySQL, driverPostgres:
		return value, nil
	default:
		return "", fmt.Errorf("%w: %s", errInvalidDriver, value)
	}
}

func openTarget(ctx context.Context, cfg benchConfig) (*target, error) {
	if cfg.driver == driverPostgres {
		return openPostgres(ctx, cfg)
	}

	return openMySQL(cfg)
}

func openMySQL(cfg benchConfig) (*target, error) {
	db, err := sql.Open("mysql", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conns := cfg.workers + cfg.producers + extraDBConns
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	// Concurrent dispatchers need SKIP LOCKED to avoid duplicate delivery.
	store, err := mysql.NewStore(db, mysql.WithTable(cfg.table), mysql.WithRowLocking(true))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &target{
		consumer: store,
		capture:  captureInTx[*sql.Tx](store),
		reset: func(ctx context.Context) error {
			schema, err := mysql.Schema(store.Table())
			if err != nil {
				return err
			}
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+store.Table()); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			return nil
		},
		close: func() { _ = db.Close() },
	}, nil
}

func openPostgres(ctx context.Context, cfg benchConfig) (*target, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.workers + cfg.producers + extraDBConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	store, err := postgres.NewStore(pool, postgres.WithTable(cfg.table), postgres.WithRowLocking(true))
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &target{
		consumer: store,
		capture:  captureInTx[pgx.Tx](store),
		reset: func(ctx context.Context) error {
			schema, err := postgres.Schema(store.Table())
			if err != nil {
				return err
			}
			if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+store.Table()); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
			if _, err := pool.Exec(ctx, schema); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			return nil
		},
		close: pool.Close,
	}, nil
}

// captureInTx writes occurrences in a transaction of their own.
func captureInTx[T any](store outbox.TxStore[T]) func(context.Context, []outbox.Occurrence) error {
	capturer := outbox.NewCapturer(outbox.JSONCodec{})

	return func(ctx context.Context, occurrences []outbox.Occurrence) error {
		tx, err := store.Begin(ctx)
		if err != nil {
			return err
		}
		if err := capturer.CaptureOccurrences(ctx, store.Writer(tx), occurrences...); err != nil {
			return errors.Join(err, store.Rollback(ctx, tx))
		}

		return store.Commit(ctx, tx)
	}
}
