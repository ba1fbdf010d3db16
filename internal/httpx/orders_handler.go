package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/lojabr/checkout-core/internal/auth"
	"github.com/lojabr/checkout-core/internal/checkout"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/redisx"
)

type OrdersHandler struct {
	Service *orders.Service
	Redis   *redis.Client
}

type CreateOrderReq struct {
	ExternalID string              `json:"external_id"`
	Items      []checkout.CartLine `json:"items"`
	Method     string              `json:"payment_method"`
	Shipping   orders.Address      `json:"shipping"`
}

type CreateOrderResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || len(req.Items) == 0 || req.Method == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, existed, err := h.Service.Checkout(ctx, orders.CheckoutInput{
		ExternalID: req.ExternalID,
		UserID:     auth.UserID(r.Context()),
		Lines:      req.Items,
		Method:     fees.Method(req.Method),
		Shipping:   req.Shipping,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Redis shortcuts: idempotency pointer and status cache. The store
	// stays the source of truth, these only make hot reads cheap.
	if h.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		h.cacheStatus(ctx, o)
	}

	code := http.StatusCreated
	if existed {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.Service.ListByUser(ctx, auth.UserID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Get(ctx, chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// status serves the cached status when fresh and falls back to the store.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			if writeCachedStatus(w, s, auth.UserID(r.Context())) {
				return
			}
		}
	}

	o, err := h.Service.Get(ctx, orderID, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusBody(o))
}

// cachedStatus is what cacheStatus stores: the owner rides along so the
// cache hit can enforce the same ownership rule as the store path, but it
// is never echoed back to the client.
type cachedStatus struct {
	UserID    string        `json:"user_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// writeCachedStatus answers from a cache entry. It reports false when the
// entry is unusable and the store should answer instead. A caller who does
// not own the order gets the same not-found the store path gives.
func writeCachedStatus(w http.ResponseWriter, raw, userID string) bool {
	var cs cachedStatus
	if err := json.Unmarshal([]byte(raw), &cs); err != nil || cs.Status == "" || cs.UserID == "" {
		return false
	}
	if userID != "" && cs.UserID != userID {
		writeError(w, orders.ErrNotOwner)
		return true
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": cs.Status, "updated_at": cs.UpdatedAt})
	return true
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Cancel(ctx, chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func statusBody(o orders.Order) map[string]any {
	return map[string]any{"status": o.Status, "updated_at": o.UpdatedAt}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(cachedStatus{UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
