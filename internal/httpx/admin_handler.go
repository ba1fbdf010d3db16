package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/stock"
)

// AdminHandler exposes operator actions. Mount behind auth.RequireAdmin.
type AdminHandler struct {
	Ledger  *stock.Ledger
	Service *orders.Service
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/products/{id}/restock", h.restock)
	r.Post("/admin/orders/{id}/fulfill", h.fulfill)
	r.Post("/admin/orders/{id}/complete", h.complete)
}

// restock is the explicit return-to-shelf action. Refunds never restock
// on their own; an operator confirms the goods came back first.
func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "qty must be positive"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	productID := chi.URLParam(r, "id")
	if err := h.Ledger.Restock(ctx, productID, req.Qty); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.Ledger.Products.Get(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.BeginFulfillment(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilling"})
}

func (h *AdminHandler) complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Complete(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
