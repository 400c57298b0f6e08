package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Dispatcher polls a Consumer and publishes pending records to a broker.
type Dispatcher struct {
	consumer  Consumer
	registry  *Registry
	publisher Publisher
	cfg       DispatcherConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Fetched   int
	Delivered int
	Failed    int
	// Skipped is true when the cycle guard was held elsewhere.
	Skipped bool
}

type cycleOutcome struct {
	delivered []ID
	failed    []Failure
	permanent int
}

// NewDispatcher constructs a Dispatcher with defaults and optional settings.
func NewDispatcher(consumer Consumer, registry *Registry, publisher Publisher, opts ...DispatcherOption) *Dispatcher {
	if consumer == nil {
		panic("outbox: nil Consumer")
	}
	if registry == nil {
		panic("outbox: nil Registry")
	}
	if publisher == nil {
		panic("outbox: nil Publisher")
	}

	var cfg DispatcherConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Dispatcher{
		consumer:  consumer,
		registry:  registry,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run executes dispatch cycles every poll interval until ctx is cancelled.
// Cycle errors are logged and never stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.cfg.Logger.Info("outbox dispatcher started",
		"batch_size", d.cfg.BatchSize, "poll_interval", d.cfg.PollInterval.String())
	defer d.cfg.Logger.Info("outbox dispatcher stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := d.runCycle(ctx); err != nil {
			d.cfg.Logger.Error("outbox dispatch cycle failed", "err", err)
		}

		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return err
		}
	}
}

// DispatchOnce runs a single cycle: fetch, publish in order, persist outcomes.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (CycleResult, error) {
	return d.runCycle(ctx)
}

func (d *Dispatcher) runCycle(ctx context.Context) (result CycleResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.cfg.Logger.Error("outbox dispatch cycle panic", "panic", rec)
			err = fmt.Errorf("%w: %v", ErrCyclePanic, rec)
		}
	}()

	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}

	if d.cfg.CycleGuard != nil {
		release, acquired, guardErr := d.cfg.CycleGuard.TryAcquire(ctx)
		if guardErr != nil {
			return CycleResult{}, fmt.Errorf("outbox cycle guard failed: %w", guardErr)
		}
		if !acquired {
			d.cfg.Logger.Debug("outbox cycle guard held elsewhere; skipping cycle")

			return CycleResult{Skipped: true}, nil
		}
		defer release()
	}

	// The cycle outlives a shutdown request so completed publishes are persisted.
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		timer := time.AfterFunc(d.cfg.ShutdownTimeout, cancel)
		context.AfterFunc(cycleCtx, func() { timer.Stop() })
	})
	defer stop()

	batch, err := d.consumer.Fetch(cycleCtx, FetchOptions{BatchSize: d.cfg.BatchSize})
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			d.maybeRecordPending(cycleCtx)

			return CycleResult{}, nil
		}

		return CycleResult{}, fmt.Errorf("outbox fetch failed: %w", err)
	}

	result, err = d.processBatch(ctx, cycleCtx, batch)
	if err == nil {
		// Sampled after commit so a backlog or stuck records are reported.
		d.maybeRecordPending(cycleCtx)
	}

	return result, err
}

func (d *Dispatcher) processBatch(ctx, cycleCtx context.Context, batch Batch) (CycleResult, error) {
	start := time.Now()
	defer func() {
		d.cfg.Metrics.ObserveCycleDuration(time.Since(start))
	}()

	if batch == nil {
		return CycleResult{}, ErrNilBatch
	}

	records := batch.Records()
	if len(records) == 0 {
		rollbackErr := batch.Rollback()

		return CycleResult{}, errors.Join(ErrEmptyBatch, rollbackErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			_ = batch.Rollback()
			panic(rec)
		}
	}()

	outcome := d.publishRecords(ctx, cycleCtx, records)
	result := CycleResult{
		Fetched:   len(records),
		Delivered: len(outcome.delivered),
		Failed:    len(outcome.failed),
	}

	if err := d.persist(cycleCtx, batch, outcome); err != nil {
		d.cfg.Metrics.AddPersistFailures(1)

		return result, err
	}

	d.cfg.Metrics.AddDelivered(len(outcome.delivered))
	d.cfg.Metrics.AddFailed(len(outcome.failed))
	d.cfg.Metrics.AddPermanent(outcome.permanent)

	return result, nil
}

// publishRecords publishes in fetch order. Once ctx is done no new publish is
// issued; records not attempted stay pending without an attempt recorded.
func (d *Dispatcher) publishRecords(ctx, cycleCtx context.Context, records []Record) cycleOutcome {
	outcome := cycleOutcome{
		delivered: make([]ID, 0, len(records)),
		failed:    make([]Failure, 0),
	}

	for i := range records {
		if ctx.Err() != nil || cycleCtx.Err() != nil {
			d.cfg.Logger.Info("outbox shutdown requested; leaving records pending", "count", len(records)-i)

			break
		}

		record := records[i]
		if err := d.publish(cycleCtx, record); err != nil {
			d.recordFailure(cycleCtx, record, err, &outcome)

			continue
		}
		outcome.delivered = append(outcome.delivered, record.ID)
	}

	return outcome
}

func (d *Dispatcher) publish(ctx context.Context, record Record) error {
	payload, err := d.registry.Decode(record)
	if err != nil {
		return err
	}

	publishCtx := ctx
	cancel := func() {}
	if d.cfg.PublishTimeout > 0 {
		publishCtx, cancel = context.WithTimeout(ctx, d.cfg.PublishTimeout)
	}
	defer cancel()

	if err := d.publisher.Publish(publishCtx, newMessage(record, payload)); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, record Record, err error, outcome *cycleOutcome) {
	if d.cfg.ErrorHandler != nil {
		d.cfg.ErrorHandler(ctx, record, err)
	}

	action := d.cfg.FailureClassifier(ctx, record, err)
	if action == FailurePermanent {
		outcome.permanent++
	}
	d.cfg.Logger.Warn("outbox record dispatch failed",
		"record_id", record.ID.String(),
		"type_tag", record.TypeTag,
		"routing_key", record.RoutingKey,
		"action", action.String(),
		"err", err,
	)
	outcome.failed = append(outcome.failed, Failure{ID: record.ID, Err: err, Action: action})
}

func (d *Dispatcher) persist(ctx context.Context, batch Batch, outcome cycleOutcome) error {
	if len(outcome.delivered) > 0 {
		if err := batch.MarkDelivered(ctx, outcome.delivered, d.cfg.Clock.Now()); err != nil {
			return d.rollbackWith(batch, fmt.Errorf("%w: mark delivered: %w", ErrBatchPersistFailed, err))
		}
	}
	if len(outcome.failed) > 0 {
		if err := batch.RecordFailures(ctx, outcome.failed); err != nil {
			return d.rollbackWith(batch, fmt.Errorf("%w: record failures: %w", ErrBatchPersistFailed, err))
		}
	}

	if err := batch.Commit(); err != nil {
		return d.rollbackWith(batch, fmt.Errorf("%w: commit: %w", ErrBatchPersistFailed, err))
	}

	return nil
}

func (d *Dispatcher) rollbackWith(batch Batch, err error) error {
	rollbackErr := batch.Rollback()
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, fmt.Errorf("outbox rollback failed: %w", rollbackErr))
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) maybeRecordPending(ctx context.Context) {
	counter, ok := d.consumer.(PendingCounter)
	if !ok {
		return
	}
	if d.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := d.cfg.Clock.Now()
	d.pendingMu.Lock()
	nextAllowed := d.pendingAt.Add(d.cfg.PendingInterval)
	if !d.pendingAt.IsZero() && now.Before(nextAllowed) {
		d.pendingMu.Unlock()

		return
	}
	d.pendingAt = now
	d.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx)
	if err != nil {
		d.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	d.cfg.Metrics.SetPending(count)
}
