package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestUnitOfWork_CapturesAndPatchesStoreAssignedID(t *testing.T) {
	store := &memStore{}
	uow := NewUnitOfWork[*memTx](store)
	order := newTestOrder("alice", time.Unix(100, 0))

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(order)
		work.Flush(func(context.Context, *memTx) error {
			order.id = 42

			return nil
		})

		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}

	records := store.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	var decoded orderPlaced
	if err := json.Unmarshal(records[0].Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.OrderID != 42 {
		t.Fatalf("expected patched order id 42, got %d", decoded.OrderID)
	}
	if records[0].State != StatePending {
		t.Fatalf("expected pending record")
	}
}

func TestUnitOfWork_CommitFailureLeavesNoRecords(t *testing.T) {
	store := &memStore{commitErr: errBoom}
	uow := NewUnitOfWork[*memTx](store)
	order := newTestOrder("bob", time.Unix(100, 0))

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(order)

		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if len(store.snapshot()) != 0 {
		t.Fatalf("expected zero records after failed commit")
	}
	if store.patchCalls != 0 {
		t.Fatalf("patch-back must not run after failed commit")
	}
}

func TestUnitOfWork_CaptureFailureRollsBack(t *testing.T) {
	store := &memStore{appendErr: errBoom}
	uow := NewUnitOfWork[*memTx](store)
	flushed := false

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(newTestOrder("carol", time.Unix(100, 0)))
		work.Flush(func(context.Context, *memTx) error {
			flushed = true

			return nil
		})

		return nil
	})
	if !errors.Is(err, ErrCaptureFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("expected capture failure, got %v", err)
	}
	if flushed {
		t.Fatalf("flush must not run after capture failure")
	}
	if len(store.snapshot()) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestUnitOfWork_FunctionErrorRollsBack(t *testing.T) {
	store := &memStore{}
	uow := NewUnitOfWork[*memTx](store)
	var tx *memTx

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		tx = work.Tx()
		work.Track(newTestOrder("dave", time.Unix(100, 0)))

		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected function error, got %v", err)
	}
	if !tx.rolledBack {
		t.Fatalf("expected rollback")
	}
	if len(store.snapshot()) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestUnitOfWork_FlushErrorRollsBack(t *testing.T) {
	store := &memStore{}
	uow := NewUnitOfWork[*memTx](store)

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(newTestOrder("erin", time.Unix(100, 0)))
		work.Flush(func(context.Context, *memTx) error { return errBoom })

		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if len(store.snapshot()) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestUnitOfWork_RetryAfterFlushErrorCapturesOccurrences(t *testing.T) {
	store := &memStore{}
	uow := NewUnitOfWork[*memTx](store)
	order := newTestOrder("gina", time.Unix(100, 0))

	attempt := 0
	do := func() error {
		return uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
			attempt++
			work.Track(order)
			work.Flush(func(context.Context, *memTx) error {
				if attempt == 1 {
					return errBoom
				}
				order.id = 7

				return nil
			})

			return nil
		})
	}

	if err := do(); !errors.Is(err, errBoom) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if order.events.Pending() != 1 {
		t.Fatalf("expected occurrence restored after rollback, got %d pending", order.events.Pending())
	}
	if err := do(); err != nil {
		t.Fatalf("retry: %v", err)
	}

	records := store.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record after committed retry, got %d", len(records))
	}
	var decoded orderPlaced
	if err := json.Unmarshal(records[0].Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.OrderID != 7 {
		t.Fatalf("expected patched order id 7, got %d", decoded.OrderID)
	}
	if order.events.Pending() != 0 {
		t.Fatalf("expected aggregate drained after commit")
	}
}

func TestUnitOfWork_CommitFailureRestoresOccurrences(t *testing.T) {
	store := &memStore{commitErr: errBoom}
	uow := NewUnitOfWork[*memTx](store)
	order := newTestOrder("hank", time.Unix(100, 0))

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(order)

		return nil
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if order.events.Pending() != 1 {
		t.Fatalf("expected occurrence restored, got %d pending", order.events.Pending())
	}
}

func TestUnitOfWork_PatchBackFailureIsLoggedOnly(t *testing.T) {
	store := &memStore{patchErr: errBoom}
	logger := &recordingLogger{}
	uow := NewUnitOfWork[*memTx](store, WithWorkLogger(logger))
	order := newTestOrder("frank", time.Unix(100, 0))

	err := uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
		work.Track(order)
		work.Flush(func(context.Context, *memTx) error {
			order.id = 11

			return nil
		})

		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if logger.count("warn") != 1 {
		t.Fatalf("expected one warning, got %d", logger.count("warn"))
	}

	records := store.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected committed record, got %d", len(records))
	}
	var decoded orderPlaced
	if err := json.Unmarshal(records[0].Payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.OrderID != 0 {
		t.Fatalf("expected placeholder id to remain, got %d", decoded.OrderID)
	}
}

func TestUnitOfWork_PanicRollsBack(t *testing.T) {
	store := &memStore{}
	uow := NewUnitOfWork[*memTx](store)
	var tx *memTx

	func() {
		defer func() {
			if rec := recover(); rec == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = uow.Do(context.Background(), func(_ context.Context, work *Work[*memTx]) error {
			tx = work.Tx()
			panic("kaboom")
		})
	}()

	if tx == nil || !tx.rolledBack {
		t.Fatalf("expected rollback on panic")
	}
}

func TestUnitOfWork_BeginFailure(t *testing.T) {
	store := &memStore{beginErr: errBoom}
	uow := NewUnitOfWork[*memTx](store)

	called := false
	err := uow.Do(context.Background(), func(context.Context, *Work[*memTx]) error {
		called = true

		return nil
	})
	if !errors.Is(err, errBoom) || called {
		t.Fatalf("expected begin failure without running fn, got %v", err)
	}
}
