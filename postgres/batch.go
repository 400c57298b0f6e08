package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/velmie/txoutbox"
)

type batch struct {
	ctx     context.Context
	tx      pgx.Tx
	store   *Store
	records []outbox.Record
}

// Records returns the records fetched for this batch.
func (b *batch) Records() []outbox.Record {
	return b.records
}

// MarkDelivered flags the provided records as processed.
func (b *batch) MarkDelivered(ctx context.Context, ids []outbox.ID, at time.Time) error {
	return b.store.markDelivered(ctx, b.tx, ids, at)
}

// RecordFailures bumps attempt counters for each failure.
func (b *batch) RecordFailures(ctx context.Context, failures []outbox.Failure) error {
	return b.store.recordFailures(ctx, b.tx, failures)
}

// Commit finalizes the batch transaction.
func (b *batch) Commit() error {
	return b.tx.Commit(b.ctx)
}

// Rollback discards the batch transaction.
func (b *batch) Rollback() error {
	err := b.tx.Rollback(b.ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}
