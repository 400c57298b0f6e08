package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/internal/orders"
	"github.com/velmie/txoutbox/mysql"
	"github.com/velmie/txoutbox/postgres"
)

// storage bundles what the process needs from one database driver.
type storage struct {
	consumer outbox.Consumer
	orders   orders.Placer
	ready    readyCheck
	close    func()
}

func openStorage(ctx context.Context, cfg serviceConfig, codec outbox.Codec, logger *slog.Logger) (*storage, error) {
	switch cfg.databaseDriver {
	case driverMySQL:
		return openMySQL(ctx, cfg, codec, logger)
	default:
		return openPostgres(ctx, cfg, codec, logger)
	}
}

func openPostgres(ctx context.Context, cfg serviceConfig, codec outbox.Codec, logger *slog.Logger) (*storage, error) {
	pool, err := pgxpool.New(ctx, cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.migrate {
		if err := migratePostgres(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, err
		}
	}

	store, err := postgres.NewStore(pool,
		postgres.WithTable(cfg.outboxTable),
		postgres.WithRowLocking(cfg.rowLocking),
	)
	if err != nil {
		pool.Close()
		return nil, err
	}

	uow := outbox.NewUnitOfWork[pgx.Tx](store, outbox.WithWorkCodec(codec), outbox.WithWorkLogger(logger))
	svc := orders.NewService(uow, orders.NewPostgresRepository(pool), orders.WithLogger(logger))

	return &storage{
		consumer: store,
		orders:   svc,
		ready:    readyCheck{name: "postgres", check: pool.Ping},
		close:    pool.Close,
	}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool, cfg serviceConfig) error {
	schema, err := postgresOutboxSchema(cfg)
	if err != nil {
		return err
	}
	for _, stmt := range []string{schema, orders.PostgresSchema} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	return nil
}

func postgresOutboxSchema(cfg serviceConfig) (string, error) {
	if cfg.contentType == contentMsgpack {
		return postgres.SchemaBinary(cfg.outboxTable)
	}
	return postgres.Schema(cfg.outboxTable)
}

func openMySQL(ctx context.Context, cfg serviceConfig, codec outbox.Codec, logger *slog.Logger) (*storage, error) {
	dsn, err := mysqlDSN(cfg.databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	closeDB := func() { _ = db.Close() }

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	if cfg.migrate {
		if err := migrateMySQL(ctx, db, cfg); err != nil {
			closeDB()
			return nil, err
		}
	}

	store, err := mysql.NewStore(db,
		mysql.WithTable(cfg.outboxTable),
		mysql.WithRowLocking(cfg.rowLocking),
	)
	if err != nil {
		closeDB()
		return nil, err
	}

	uow := outbox.NewUnitOfWork[*sql.Tx](store, outbox.WithWorkCodec(codec), outbox.WithWorkLogger(logger))
	svc := orders.NewService(uow, orders.NewMySQLRepository(db), orders.WithLogger(logger))

	return &storage{
		consumer: store,
		orders:   svc,
		ready:    readyCheck{name: "mysql", check: db.PingContext},
		close:    closeDB,
	}, nil
}

// mysqlDSN forces parseTime so DATETIME columns scan into time.Time.
func mysqlDSN(raw string) (string, error) {
	dsnCfg, err := mysqldriver.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsnCfg.ParseTime = true

	return dsnCfg.FormatDSN(), nil
}

func migrateMySQL(ctx context.Context, db *sql.DB, cfg serviceConfig) error {
	outboxSchema := mysql.Schema
	if cfg.contentType == contentMsgpack {
		outboxSchema = mysql.SchemaBinary
	}
	schema, err := outboxSchema(cfg.outboxTable)
	if err != nil {
		return err
	}
	for _, stmt := range append([]string{schema}, orders.MySQLSchema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
	}
	return nil
}
