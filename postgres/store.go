package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/velmie/txoutbox"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Executor runs statements; pgx.Tx, *pgx.Conn and *pgxpool.Pool satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements a PostgreSQL-backed outbox.
type Store struct {
	db      DB
	cfg     Config
	queries queries
	table   string
}

var _ outbox.Consumer = (*Store)(nil)
var _ outbox.PendingCounter = (*Store)(nil)
var _ outbox.TxStore[pgx.Tx] = (*Store)(nil)

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table, cfg.RowLocking),
		table:   table,
	}, nil
}

// Begin starts a business transaction.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", err)
	}

	return tx, nil
}

// Commit commits tx.
func (s *Store) Commit(ctx context.Context, tx pgx.Tx) error {
	if tx == nil {
		return ErrTxRequired
	}

	return tx.Commit(ctx)
}

// Rollback rolls back tx. A closed transaction is not an error.
func (s *Store) Rollback(ctx context.Context, tx pgx.Tx) error {
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}

// Writer returns a RecordWriter that appends within tx.
func (s *Store) Writer(tx pgx.Tx) outbox.RecordWriter {
	return outbox.RecordWriterFunc(func(ctx context.Context, records []outbox.Record) error {
		if tx == nil {
			return ErrTxRequired
		}

		return s.Append(ctx, tx, records)
	})
}

// Append inserts pending records using the provided executor (transaction preferred).
func (s *Store) Append(ctx context.Context, exec Executor, records []outbox.Record) error {
	if exec == nil {
		return ErrExecutorRequired
	}
	if len(records) == 0 {
		return nil
	}

	args := make([]any, 0, len(records)*insertArgsPerRow)
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
		contentType := record.ContentType
		if contentType == "" {
			contentType = outbox.ContentTypeJSON
		}
		args = append(args,
			uuidArg(record.ID),
			record.TypeTag,
			record.RoutingKey,
			record.Payload,
			contentType,
			record.CreatedAt.UTC(),
		)
	}

	if _, err := exec.Exec(ctx, buildInsertQuery(s.queries.insertPrefix, len(records)), args...); err != nil {
		return fmt.Errorf("outbox postgres: insert failed: %w", err)
	}

	return nil
}

// Fetch returns a batch of pending records ordered by creation time.
func (s *Store) Fetch(ctx context.Context, opts outbox.FetchOptions) (outbox.Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.cfg.Isolation})
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", err)
	}

	records, err := s.selectBatch(ctx, tx, opts)
	if err != nil {
		rollbackErr := tx.Rollback(ctx)

		return nil, errors.Join(err, rollbackErr)
	}
	if len(records) == 0 {
		_ = tx.Rollback(ctx)

		return nil, outbox.ErrNoRecords
	}

	return &batch{ctx: context.WithoutCancel(ctx), tx: tx, store: s, records: records}, nil
}

func (s *Store) selectBatch(ctx context.Context, tx pgx.Tx, opts outbox.FetchOptions) ([]outbox.Record, error) {
	rows, err := tx.Query(ctx, s.queries.selectPending, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]outbox.Record, 0, opts.BatchSize)
	for rows.Next() {
		var (
			id          pgtype.UUID
			typeTag     string
			routingKey  string
			payload     []byte
			contentType string
			createdAt   time.Time
			attempts    int
		)

		if err := rows.Scan(&id, &typeTag, &routingKey, &payload, &contentType, &createdAt, &attempts); err != nil {
			return nil, fmt.Errorf("outbox postgres: scan failed: %w", err)
		}

		records = append(records, outbox.Record{
			ID:          outbox.ID(id.Bytes),
			TypeTag:     typeTag,
			RoutingKey:  routingKey,
			Payload:     payload,
			ContentType: contentType,
			CreatedAt:   createdAt.UTC(),
			State:       outbox.StatePending,
			Attempts:    attempts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: rows failed: %w", err)
	}

	return records, nil
}

func (s *Store) markDelivered(ctx context.Context, exec Executor, ids []outbox.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := exec.Exec(ctx, s.queries.markDelivered, at.UTC(), uuidArgs(ids)); err != nil {
		return fmt.Errorf("outbox postgres: mark delivered failed: %w", err)
	}

	return nil
}

func (s *Store) recordFailures(ctx context.Context, exec Executor, failures []outbox.Failure) error {
	if len(failures) == 0 {
		return nil
	}

	ids := make([]pgtype.UUID, 0, len(failures))
	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		ids = append(ids, uuidArg(failure.ID))
		messages = append(messages, truncateError(failure.Err, s.cfg.MaxErrLen))
	}

	if _, err := exec.Exec(ctx, s.queries.recordFailures, ids, messages); err != nil {
		return fmt.Errorf("outbox postgres: failure update failed: %w", err)
	}

	return nil
}

// PatchPayloads rewrites payloads of pending records in a dedicated transaction.
// Records delivered in the meantime are left untouched.
func (s *Store) PatchPayloads(ctx context.Context, patches []outbox.PayloadPatch) (int, error) {
	if len(patches) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: begin patch tx failed: %w", err)
	}

	updated, err := s.patch(ctx, tx, patches)
	if err != nil {
		rollbackErr := tx.Rollback(ctx)

		return 0, errors.Join(err, rollbackErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox postgres: commit patch tx failed: %w", err)
	}

	return updated, nil
}

func (s *Store) patch(ctx context.Context, tx pgx.Tx, patches []outbox.PayloadPatch) (int, error) {
	b := &pgx.Batch{}
	for _, patch := range patches {
		b.Queue(s.queries.patchPayload, patch.Payload, uuidArg(patch.ID))
	}

	results := tx.SendBatch(ctx, b)
	updated := 0
	for range patches {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()

			return 0, fmt.Errorf("outbox postgres: patch payload failed: %w", err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("outbox postgres: patch batch close failed: %w", err)
	}

	return updated, nil
}

// PendingCount returns the number of pending outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox postgres: pending count failed: %w", err)
	}

	return count, nil
}

// Table returns the sanitized table name.
func (s *Store) Table() string {
	return s.table
}

func uuidArg(id outbox.ID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidArgs(ids []outbox.ID) []pgtype.UUID {
	out := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		out = append(out, uuidArg(id))
	}

	return out
}

func truncateError(err error, limit int) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}

	return string([]rune(msg)[:limit])
}
