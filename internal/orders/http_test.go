package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePlacer struct {
	created CreateOrder
	order   *Order
	err     error
}

func (p *fakePlacer) Create(_ context.Context, req CreateOrder) (*Order, error) {
	p.created = req
	if p.err != nil {
		return nil, p.err
	}

	return p.order, nil
}

func (p *fakePlacer) Get(_ context.Context, id int64) (*Order, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.order == nil || p.order.ID != id {
		return nil, ErrNotFound
	}

	return p.order, nil
}

func newTestMux(placer Placer) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(placer, nil).Register(mux)

	return mux
}

func TestHandlerCreate(t *testing.T) {
	placer := &fakePlacer{order: &Order{ID: 42, CustomerName: "Ada", TotalAmount: decimal.NewFromInt(10)}}
	mux := newTestMux(placer)

	body := `{"customerName":"Ada","customerEmail":"ada@example.com","items":[{"productId":1,"quantity":2}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/orders/42", rec.Header().Get("Location"))
	require.Equal(t, []ItemRequest{{ProductID: 1, Quantity: 2}}, placer.created.Items)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, float64(42), got["id"])
}

func TestHandlerCreateErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest},
		{name: "validation", body: `{}`, err: ErrItemsRequired, status: http.StatusBadRequest},
		{name: "unknown product", body: `{}`, err: ErrProductNotFound, status: http.StatusBadRequest},
		{name: "internal", body: `{}`, err: errBoom, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestMux(&fakePlacer{err: tc.err})
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandlerGet(t *testing.T) {
	mux := newTestMux(&fakePlacer{order: &Order{ID: 7, CustomerName: "Ada"}})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/8", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
