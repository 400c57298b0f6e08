package orders

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velmie/txoutbox"
)

func newTestService(store *fakeStore, repo *fakeRepo) *Service[*fakeTx] {
	return NewService[*fakeTx](outbox.NewUnitOfWork[*fakeTx](store), repo)
}

func TestServiceCreatePatchesAssignedOrderID(t *testing.T) {
	store := &fakeStore{}
	repo := newFakeRepo(42)
	svc := newTestService(store, repo)

	order, err := svc.Create(context.Background(), CreateOrder{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), order.ID)
	require.Equal(t, "1359.97", order.TotalAmount.StringFixed(2))

	require.Len(t, store.committed, 1)
	record := store.committed[0]
	require.Equal(t, TagOrderCreated, record.TypeTag)
	require.Equal(t, RoutingKeyOrderCreated, record.RoutingKey)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(record.Payload, &payload))
	require.Equal(t, float64(42), payload["orderId"])
	require.Equal(t, "Ada", payload["customerName"])

	registry := outbox.NewRegistry()
	require.NoError(t, RegisterEvents(registry))
	decoded, err := registry.Decode(record)
	require.NoError(t, err)
	require.Equal(t, int64(42), decoded.(*OrderCreated).OrderID)
}

func TestServiceCreateUnknownProduct(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, newFakeRepo(1))

	_, err := svc.Create(context.Background(), CreateOrder{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items:         []ItemRequest{{ProductID: 99, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Empty(t, store.committed)
	require.Equal(t, 1, store.rollbacks)
}

func TestServiceCreateInsertFailureLeavesNoRecords(t *testing.T) {
	store := &fakeStore{}
	repo := newFakeRepo(1)
	repo.err = errBoom
	svc := newTestService(store, repo)

	_, err := svc.Create(context.Background(), CreateOrder{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items:         []ItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, store.committed)
}

func TestServiceCreateCommitFailure(t *testing.T) {
	store := &fakeStore{commitErr: errBoom}
	svc := newTestService(store, newFakeRepo(1))

	_, err := svc.Create(context.Background(), CreateOrder{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items:         []ItemRequest{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, store.committed)
}

func TestServiceCreateRequiresItems(t *testing.T) {
	svc := newTestService(&fakeStore{}, newFakeRepo(1))

	_, err := svc.Create(context.Background(), CreateOrder{CustomerName: "Ada", CustomerEmail: "a@example.com"})
	require.ErrorIs(t, err, ErrItemsRequired)
}

func TestServiceGet(t *testing.T) {
	repo := newFakeRepo(7)
	svc := newTestService(&fakeStore{}, repo)

	created, err := svc.Create(context.Background(), CreateOrder{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items:         []ItemRequest{{ProductID: 2, Quantity: 1}},
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)

	_, err = svc.Get(context.Background(), 1000)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProductIDsDeduplicates(t *testing.T) {
	ids := productIDs([]ItemRequest{{ProductID: 3}, {ProductID: 1}, {ProductID: 3}})
	require.Equal(t, []int64{1, 3}, ids)
}
