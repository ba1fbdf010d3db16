package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lojabr/checkout-core/internal/checkout"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/payments"
	"github.com/lojabr/checkout-core/internal/stock"
	"github.com/lojabr/checkout-core/internal/webhook"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes. Unrecognized
// errors become 500 without leaking detail upstream.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrNotOwner): // hide other users' orders
		return http.StatusNotFound
	case errors.Is(err, stock.ErrProductNotFound),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, fees.ErrUnsupportedMethod),
		errors.Is(err, orders.ErrRefundExceeds),
		errors.Is(err, webhook.ErrInvalidSignature),
		errors.Is(err, webhook.ErrEmptyEvent):
		return http.StatusBadRequest
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrStockConflict),
		errors.Is(err, orders.ErrVersionConflict),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotCancellable),
		errors.Is(err, orders.ErrNotRefundable):
		return http.StatusConflict
	case errors.Is(err, payments.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, payments.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
