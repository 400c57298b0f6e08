package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/velmie/txoutbox"
)

const (
	maxErrorLen       = 1024
	insertArgsPerRow  = 6
	markFixedArgs     = 1
	placeholderGrowth = 2
)

// Executor runs statements; *sql.Tx and *sql.DB satisfy it.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements a MySQL-backed outbox.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var _ outbox.Consumer = (*Store)(nil)
var _ outbox.PendingCounter = (*Store)(nil)
var _ outbox.TxStore[*sql.Tx] = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
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

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Begin starts a business transaction.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	return tx, nil
}

// Commit commits tx.
func (s *Store) Commit(_ context.Context, tx *sql.Tx) error {
	if tx == nil {
		return ErrTxRequired
	}

	return tx.Commit()
}

// Rollback rolls back tx. A finished transaction is not an error.
func (s *Store) Rollback(_ context.Context, tx *sql.Tx) error {
	if tx == nil {
		return nil
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

// Writer returns a RecordWriter that appends within tx.
func (s *Store) Writer(tx *sql.Tx) outbox.RecordWriter {
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
		args = append(args,
			record.ID[:],
			record.TypeTag,
			record.RoutingKey,
			payloadArg(record.ContentType, record.Payload),
			contentTypeOrDefault(record.ContentType),
			record.CreatedAt.UTC(),
		)
	}

	if _, err := exec.ExecContext(ctx, buildInsertQuery(s.queries, len(records)), args...); err != nil {
		return fmt.Errorf("outbox mysql: insert failed: %w", err)
	}

	return nil
}

// Fetch returns a batch of pending records ordered by creation time.
func (s *Store) Fetch(ctx context.Context, opts outbox.FetchOptions) (outbox.Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.cfg.Isolation})
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	records, err := s.selectBatch(ctx, tx, opts)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(records) == 0 {
		_ = tx.Rollback()

		return nil, outbox.ErrNoRecords
	}

	return &batch{tx: tx, store: s, records: records}, nil
}

func (s *Store) selectBatch(ctx context.Context, tx *sql.Tx, opts outbox.FetchOptions) ([]outbox.Record, error) {
	rows, err := tx.QueryContext(ctx, s.queries.selectPending, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: select failed: %w", err)
	}
	defer rows.Close()

	records := make([]outbox.Record, 0, opts.BatchSize)
	for rows.Next() {
		var (
			id          outbox.ID
			typeTag     string
			routingKey  string
			payload     []byte
			contentType string
			createdAt   time.Time
			attempts    int
		)

		if err := rows.Scan(&id, &typeTag, &routingKey, &payload, &contentType, &createdAt, &attempts); err != nil {
			return nil, fmt.Errorf("outbox mysql: scan failed: %w", err)
		}

		records = append(records, outbox.Record{
			ID:          id,
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
		return nil, fmt.Errorf("outbox mysql: rows failed: %w", err)
	}

	return records, nil
}

func (s *Store) markDelivered(ctx context.Context, exec Executor, ids []outbox.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+markFixedArgs)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id[:])
	}

	if _, err := exec.ExecContext(ctx, buildMarkDeliveredQuery(s.table, len(ids)), args...); err != nil {
		return fmt.Errorf("outbox mysql: mark delivered failed: %w", err)
	}

	return nil
}

func (s *Store) recordFailures(ctx context.Context, exec Executor, failures []outbox.Failure) error {
	for _, failure := range failures {
		errText := truncateError(failure.Err, s.cfg.MaxErrLen)
		if _, err := exec.ExecContext(ctx, s.queries.recordFailure, errText, failure.ID[:]); err != nil {
			return fmt.Errorf("outbox mysql: failure update failed: %w", err)
		}
	}

	return nil
}

// PatchPayloads rewrites payloads of pending records in a dedicated transaction.
// Records delivered in the meantime are left untouched.
func (s *Store) PatchPayloads(ctx context.Context, patches []outbox.PayloadPatch) (int, error) {
	if len(patches) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("outbox mysql: begin patch tx failed: %w", err)
	}

	updated, err := s.patch(ctx, tx, patches)
	if err != nil {
		rollbackErr := tx.Rollback()

		return 0, errors.Join(err, rollbackErr)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("outbox mysql: commit patch tx failed: %w", err)
	}

	return updated, nil
}

func (s *Store) patch(ctx context.Context, exec Executor, patches []outbox.PayloadPatch) (int, error) {
	updated := 0
	for _, patch := range patches {
		res, err := exec.ExecContext(ctx, s.queries.patchPayload, string(patch.Payload), patch.ID[:])
		if err != nil {
			return 0, fmt.Errorf("outbox mysql: patch payload failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("outbox mysql: patch rows affected failed: %w", err)
		}
		updated += int(n)
	}

	return updated, nil
}

// PendingCount returns the number of pending outbox rows.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox mysql: pending count failed: %w", err)
	}

	return count, nil
}

// Table returns the sanitized table name.
func (s *Store) Table() string {
	return s.table
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}

	buf := make([]byte, 0, count*placeholderGrowth)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}

	return string(buf)
}

// payloadArg binds JSON payloads as text so MySQL accepts them into a JSON column.
func payloadArg(contentType string, payload []byte) any {
	if contentTypeOrDefault(contentType) == outbox.ContentTypeJSON {
		return string(payload)
	}

	return payload
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return outbox.ContentTypeJSON
	}

	return contentType
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
