package outbox

import (
	"context"
	"time"
)

// FetchOptions controls how pending records are selected.
type FetchOptions struct {
	BatchSize int
}

// Consumer provides batches of pending outbox records.
type Consumer interface {
	// Fetch returns pending records ordered by creation time within a store transaction.
	// It returns ErrNoRecords when nothing is pending.
	Fetch(ctx context.Context, opts FetchOptions) (Batch, error)
}

// Batch represents a set of records fetched within one store transaction.
type Batch interface {
	// Records returns the fetched records in creation order.
	Records() []Record
	// MarkDelivered marks the provided records as delivered at the given time.
	// Records that are already delivered are left untouched.
	MarkDelivered(ctx context.Context, ids []ID, at time.Time) error
	// RecordFailures bumps attempt counters and stores the last error.
	// It never changes delivery state.
	RecordFailures(ctx context.Context, failures []Failure) error
	// Commit finalizes the batch transaction.
	Commit() error
	// Rollback discards the batch transaction.
	Rollback() error
}

// PendingCounter provides a total count of pending records.
type PendingCounter interface {
	// PendingCount returns the current number of pending records.
	PendingCount(ctx context.Context) (int, error)
}

// RecordWriter appends records inside the caller's transaction.
type RecordWriter interface {
	// Append inserts the records as pending.
	Append(ctx context.Context, records []Record) error
}

// RecordWriterFunc adapts a function to RecordWriter.
type RecordWriterFunc func(ctx context.Context, records []Record) error

// Append implements RecordWriter.
func (fn RecordWriterFunc) Append(ctx context.Context, records []Record) error {
	return fn(ctx, records)
}

// PayloadPatcher replaces payloads of pending records in its own transaction.
// It is a dedicated write path that never triggers capture.
type PayloadPatcher interface {
	// PatchPayloads applies the patches and returns the number of rows updated.
	PatchPayloads(ctx context.Context, patches []PayloadPatch) (int, error)
}

// TxStore is a store that can run a unit of work over transactions of type T.
type TxStore[T any] interface {
	PayloadPatcher
	// Begin starts a transaction.
	Begin(ctx context.Context) (T, error)
	// Commit commits tx.
	Commit(ctx context.Context, tx T) error
	// Rollback rolls back tx. Rolling back a finished transaction is not an error.
	Rollback(ctx context.Context, tx T) error
	// Writer returns a RecordWriter bound to tx.
	Writer(tx T) RecordWriter
}
