package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lojabr/checkout-core/internal/auth"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/metrics"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/webhook"
)

const maxWebhookBody = 64 << 10

type PaymentsHandler struct {
	Service    *orders.Service
	Fees       *fees.Calculator
	Reconciler *webhook.Reconciler
}

// methodNames maps payment methods to their customer-facing labels.
var methodNames = map[fees.Method]string{
	fees.MethodCreditCard: "Cartão de crédito",
	fees.MethodDebitCard:  "Cartão de débito",
	fees.MethodPix:        "Pix",
	fees.MethodBoleto:     "Boleto bancário",
}

type MethodInfo struct {
	Method          string `json:"method"`
	Name            string `json:"name"`
	RateBasisPoints int64  `json:"rate_basis_points"`
	FixedFeeCents   int64  `json:"fixed_fee_cents"`
}

// Register mounts the authenticated payment routes.
func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/intent", h.createIntent)
	r.Post("/payments/confirm", h.confirm)
	r.Post("/payments/refund", h.refund)
}

// RegisterPublic mounts the routes the gateway and unauthenticated
// clients call.
func (h *PaymentsHandler) RegisterPublic(r chi.Router) {
	r.Get("/payments/methods", h.listMethods)
	r.Post("/payments/webhook", h.handleWebhook)
}

func (h *PaymentsHandler) listMethods(w http.ResponseWriter, r *http.Request) {
	out := make([]MethodInfo, 0, 4)
	for _, m := range h.Fees.Methods() {
		fee, _ := h.Fees.Fee(m)
		out = append(out, MethodInfo{
			Method:          string(m),
			Name:            methodNames[m],
			RateBasisPoints: fee.RateBasisPoints,
			FixedFeeCents:   fee.FixedFeeCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"methods": out})
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, intent, err := h.Service.InitiatePayment(ctx, req.OrderID, auth.UserID(r.Context()))
	if err != nil {
		metrics.RecordGatewayCall("create_intent", "error")
		writeError(w, err)
		return
	}
	metrics.RecordGatewayCall("create_intent", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"order":  o,
		"intent": intent,
	})
}

func (h *PaymentsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntentID        string `json:"intent_id"`
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing intent_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	intent, err := h.Service.ConfirmPayment(ctx, auth.UserID(r.Context()), req.IntentID, req.PaymentMethodID)
	if err != nil {
		metrics.RecordGatewayCall("confirm_intent", "error")
		writeError(w, err)
		return
	}
	metrics.RecordGatewayCall("confirm_intent", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"intent": intent})
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     string `json:"order_id"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, rf, err := h.Service.Refund(ctx, req.OrderID, auth.UserID(r.Context()), req.AmountCents)
	if err != nil {
		metrics.RecordGatewayCall("create_refund", "error")
		writeError(w, err)
		return
	}
	metrics.RecordGatewayCall("create_refund", "ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"order":  o,
		"refund": rf,
	})
}

func (h *PaymentsHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Reconciler.Handle(ctx, body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		metrics.RecordWebhook("delivery", "error")
		writeError(w, err)
		return
	}
	metrics.RecordWebhook("delivery", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
