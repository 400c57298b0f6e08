package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/velmie/txoutbox"
)

// Placer is the part of Service the HTTP handler uses.
type Placer interface {
	Create(ctx context.Context, req CreateOrder) (*Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
}

// Handler exposes order placement over HTTP.
type Handler struct {
	orders Placer
	logger outbox.Logger
}

// NewHandler returns a Handler placing orders through orders. A nil logger
// discards diagnostics.
func NewHandler(orders Placer, logger outbox.Logger) *Handler {
	if logger == nil {
		logger = outbox.NopLogger{}
	}
	return &Handler{orders: orders, logger: logger}
}

// Register mounts POST /orders and GET /orders/{id} on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.Create)
	mux.HandleFunc("GET /orders/{id}", h.Get)
}

type createOrderRequest struct {
	CustomerName  string             `json:"customerName"`
	CustomerEmail string             `json:"customerEmail"`
	Items         []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Create places an order from a JSON body and replies 201 with the stored order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.orders.Create(r.Context(), CreateOrder{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Items:         items,
	})
	if err != nil {
		if validationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("create order failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/orders/"+strconv.FormatInt(order.ID, 10))
	writeJSON(w, http.StatusCreated, order)
}

// Get replies with the order named by the id path value, or 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get order failed", "order_id", id, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
