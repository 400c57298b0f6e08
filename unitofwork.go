package outbox

import (
	"context"
	"errors"
	"fmt"
)

// Work is the handle passed to a unit of work function.
type Work[T any] struct {
	tx      T
	tracked []Aggregate
	flushes []func(ctx context.Context, tx T) error
}

// Tx returns the transaction the unit of work runs in.
func (w *Work[T]) Tx() T {
	return w.tx
}

// Track registers aggregates whose occurrences are captured before commit.
func (w *Work[T]) Track(aggregates ...Aggregate) {
	for _, agg := range aggregates {
		if agg != nil {
			w.tracked = append(w.tracked, agg)
		}
	}
}

// Flush registers a write that runs after capture and before commit,
// typically an insert that assigns store-generated identifiers.
func (w *Work[T]) Flush(fn func(ctx context.Context, tx T) error) {
	if fn != nil {
		w.flushes = append(w.flushes, fn)
	}
}

// UnitOfWorkOption configures a UnitOfWork.
type UnitOfWorkOption func(*unitOfWorkConfig)

type unitOfWorkConfig struct {
	codec  Codec
	logger Logger
}

// WithWorkCodec sets the payload codec used by capture and patch-back.
func WithWorkCodec(codec Codec) UnitOfWorkOption {
	return func(c *unitOfWorkConfig) {
		c.codec = codec
	}
}

// WithWorkLogger sets the logger for patch-back warnings.
func WithWorkLogger(logger Logger) UnitOfWorkOption {
	return func(c *unitOfWorkConfig) {
		c.logger = logger
	}
}

// UnitOfWork runs business mutations and outbox capture in one transaction.
type UnitOfWork[T any] struct {
	store    TxStore[T]
	capturer *Capturer
	patcher  *Patcher
	logger   Logger
}

// NewUnitOfWork returns a UnitOfWork over store.
func NewUnitOfWork[T any](store TxStore[T], opts ...UnitOfWorkOption) *UnitOfWork[T] {
	if store == nil {
		panic("outbox: nil TxStore")
	}

	var cfg unitOfWorkConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.codec = codecOrJSON(cfg.codec)
	cfg.logger = loggerOrNop(cfg.logger)

	return &UnitOfWork[T]{
		store:    store,
		capturer: NewCapturer(cfg.codec, WithCaptureLogger(cfg.logger)),
		patcher:  NewPatcher(cfg.codec, store, WithPatchLogger(cfg.logger)),
		logger:   cfg.logger,
	}
}

// Do begins a transaction, runs fn, captures the occurrences of tracked
// aggregates, runs flush hooks and commits. After a successful commit it
// patches placeholder identifiers; that step is logged on failure and never
// reported to the caller. Any error before commit rolls the transaction back
// and hands drained occurrences back to aggregates implementing
// OccurrenceRestorer, so the same aggregates can be retried.
func (u *UnitOfWork[T]) Do(ctx context.Context, fn func(ctx context.Context, work *Work[T]) error) (err error) {
	tx, err := u.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("outbox: begin unit of work: %w", err)
	}

	var plan *PatchPlan
	committed := false
	defer func() {
		if committed {
			return
		}
		if rec := recover(); rec != nil {
			_ = u.store.Rollback(context.WithoutCancel(ctx), tx)
			plan.restore()
			panic(rec)
		}
	}()

	work := &Work[T]{tx: tx}
	if err := fn(ctx, work); err != nil {
		return u.rollbackWith(ctx, tx, err)
	}

	plan, err = u.capturer.Capture(ctx, u.store.Writer(tx), work.tracked...)
	if err != nil {
		return u.rollbackWith(ctx, tx, err)
	}

	for _, flush := range work.flushes {
		if err := flush(ctx, tx); err != nil {
			plan.restore()

			return u.rollbackWith(ctx, tx, err)
		}
	}

	if err := u.store.Commit(ctx, tx); err != nil {
		plan.restore()

		return u.rollbackWith(ctx, tx, fmt.Errorf("outbox: commit unit of work: %w", err))
	}
	committed = true

	if plan.Empty() {
		return nil
	}
	result, patchErr := u.patcher.PatchBack(context.WithoutCancel(ctx), plan)
	if patchErr != nil {
		u.logger.Warn("outbox patch-back failed; records keep placeholder identifiers",
			"planned", result.Planned, "err", patchErr)

		return nil
	}
	if result.Skipped > 0 {
		u.logger.Warn("outbox patch-back skipped unidentified aggregates", "count", result.Skipped)
	}

	return nil
}

func (u *UnitOfWork[T]) rollbackWith(ctx context.Context, tx T, err error) error {
	rollbackErr := u.store.Rollback(context.WithoutCancel(ctx), tx)
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}
