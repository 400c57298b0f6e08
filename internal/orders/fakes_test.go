package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velmie/txoutbox"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fakeTx struct {
	records []outbox.Record
}

type fakeStore struct {
	mu        sync.Mutex
	committed []outbox.Record
	commitErr error
	rollbacks int
}

func (s *fakeStore) Begin(context.Context) (*fakeTx, error) {
	return &fakeTx{}, nil
}

func (s *fakeStore) Commit(_ context.Context, tx *fakeTx) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.mu.Lock()
	s.committed = append(s.committed, tx.records...)
	s.mu.Unlock()

	return nil
}

func (s *fakeStore) Rollback(context.Context, *fakeTx) error {
	s.rollbacks++

	return nil
}

func (s *fakeStore) Writer(tx *fakeTx) outbox.RecordWriter {
	return outbox.RecordWriterFunc(func(_ context.Context, records []outbox.Record) error {
		tx.records = append(tx.records, records...)

		return nil
	})
}

func (s *fakeStore) PatchPayloads(_ context.Context, patches []outbox.PayloadPatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, patch := range patches {
		for i := range s.committed {
			if s.committed[i].ID == patch.ID {
				s.committed[i].Payload = patch.Payload
				updated++
			}
		}
	}

	return updated, nil
}

type fakeRepo struct {
	nextID   int64
	products map[int64]Product
	inserted []*Order
	stored   map[int64]*Order
	err      error
}

func newFakeRepo(nextID int64) *fakeRepo {
	return &fakeRepo{
		nextID: nextID,
		products: map[int64]Product{
			1: {ID: 1, Name: "Laptop", Price: decimal.RequireFromString("1299.99")},
			2: {ID: 2, Name: "Mouse", Price: decimal.RequireFromString("29.99")},
		},
		stored: make(map[int64]*Order),
	}
}

func (r *fakeRepo) Products(_ context.Context, _ *fakeTx, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product)
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}

	return out, nil
}

func (r *fakeRepo) Insert(_ context.Context, _ *fakeTx, order *Order) error {
	if r.err != nil {
		return r.err
	}
	order.AssignID(r.nextID)
	r.nextID++
	r.inserted = append(r.inserted, order)
	r.stored[order.ID] = order

	return nil
}

func (r *fakeRepo) Find(_ context.Context, id int64) (*Order, error) {
	order, ok := r.stored[id]
	if !ok {
		return nil, ErrNotFound
	}

	return order, nil
}

var errBoom = errors.New("boom")
