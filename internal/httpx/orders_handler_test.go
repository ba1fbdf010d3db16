package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lojabr/checkout-core/internal/checkout"
	"github.com/lojabr/checkout-core/internal/fees"
	"github.com/lojabr/checkout-core/internal/orders"
	"github.com/lojabr/checkout-core/internal/payments"
	"github.com/lojabr/checkout-core/internal/stock"
)

type stubGateway struct{}

func (stubGateway) CreateIntent(_ context.Context, in payments.CreateIntentInput) (payments.Intent, error) {
	return payments.Intent{ID: "pi_" + in.OrderID, Status: payments.StatusPending, AmountCents: in.AmountCents}, nil
}

func (stubGateway) ConfirmIntent(_ context.Context, intentID, _ string) (payments.Intent, error) {
	return payments.Intent{ID: intentID, Status: payments.StatusSucceeded}, nil
}

func (stubGateway) CreateRefund(_ context.Context, _, intentID string, amount int64) (payments.Refund, error) {
	return payments.Refund{ID: "re_" + intentID, Status: payments.StatusSucceeded, AmountCents: amount}, nil
}

func newTestRouter(products ...stock.Product) (http.Handler, *orders.Service) {
	ledger := stock.NewLedger(stock.NewMemProductStore(products...), stock.NewMemReservationStore())
	calc := fees.NewCalculator(nil)
	svc := &orders.Service{
		Store:   orders.NewMemStore(),
		Ledger:  ledger,
		Gateway: stubGateway{},
		Fees:    calc,
		Snap:    &checkout.Snapshotter{Ledger: ledger, Fees: calc},
	}
	r := NewRouter()
	oh := &OrdersHandler{Service: svc}
	oh.Register(r)
	ph := &PaymentsHandler{Service: svc, Fees: calc}
	ph.Register(r)
	ph.RegisterPublic(r)
	return r, svc
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderEndpoint(t *testing.T) {
	h, _ := newTestRouter(stock.Product{ID: "p1", PriceCents: 5000, Available: 10})

	body := map[string]any{
		"external_id":    "ext-1",
		"items":          []map[string]any{{"product_id": "p1", "qty": 2}},
		"payment_method": "pix",
	}
	rec := postJSON(t, h, "/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp CreateOrderResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Order.TotalCents != 10099 || resp.Idempotent {
		t.Errorf("resp = %+v, want total 10099, fresh", resp)
	}

	t.Run("replay returns 200 with same order", func(t *testing.T) {
		rec := postJSON(t, h, "/orders", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
		var replay CreateOrderResp
		if err := json.Unmarshal(rec.Body.Bytes(), &replay); err != nil {
			t.Fatal(err)
		}
		if !replay.Idempotent || replay.Order.ID != resp.Order.ID {
			t.Errorf("replay = %+v, want idempotent hit on %s", replay, resp.Order.ID)
		}
	})

	t.Run("insufficient stock maps to 409", func(t *testing.T) {
		rec := postJSON(t, h, "/orders", map[string]any{
			"external_id":    "ext-2",
			"items":          []map[string]any{{"product_id": "p1", "qty": 99}},
			"payment_method": "pix",
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("code = %d, want 409", rec.Code)
		}
	})

	t.Run("unknown method maps to 400", func(t *testing.T) {
		rec := postJSON(t, h, "/orders", map[string]any{
			"external_id":    "ext-3",
			"items":          []map[string]any{{"product_id": "p1", "qty": 1}},
			"payment_method": "cheque",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %d, want 400", rec.Code)
		}
	})
}

func TestPaymentFlowEndpoints(t *testing.T) {
	h, _ := newTestRouter(stock.Product{ID: "p1", PriceCents: 1000, Available: 5})

	rec := postJSON(t, h, "/orders", map[string]any{
		"external_id":    "ext-1",
		"items":          []map[string]any{{"product_id": "p1", "qty": 1}},
		"payment_method": "credit_card",
	})
	var created CreateOrderResp
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = postJSON(t, h, "/payments/intent", map[string]any{"order_id": created.Order.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("intent code = %d, body = %s", rec.Code, rec.Body.String())
	}
	var intentResp struct {
		Intent payments.Intent `json:"intent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &intentResp); err != nil {
		t.Fatal(err)
	}

	rec = postJSON(t, h, "/payments/confirm", map[string]any{
		"intent_id":         intentResp.Intent.ID,
		"payment_method_id": "pm_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm code = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%s", created.Order.ID), nil)
	get := httptest.NewRecorder()
	h.ServeHTTP(get, req)
	var o orders.Order
	if err := json.Unmarshal(get.Body.Bytes(), &o); err != nil {
		t.Fatal(err)
	}
	if o.Status != orders.StatusPaid {
		t.Errorf("status = %s, want paid", o.Status)
	}
}

func TestListMethodsEndpoint(t *testing.T) {
	h, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/payments/methods", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		Methods []MethodInfo `json:"methods"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Methods) != 4 {
		t.Fatalf("methods = %d, want 4", len(resp.Methods))
	}
	want := map[string]int64{"credit_card": 340, "debit_card": 290, "pix": 99, "boleto": 0}
	for _, m := range resp.Methods {
		if m.RateBasisPoints != want[m.Method] {
			t.Errorf("%s rate = %d, want %d", m.Method, m.RateBasisPoints, want[m.Method])
		}
		if m.Name == "" {
			t.Errorf("%s missing display name", m.Method)
		}
	}
}

func TestWriteCachedStatus(t *testing.T) {
	entry := `{"user_id":"u1","status":"paid","updated_at":"2026-08-29T12:00:00Z"}`

	t.Run("owner gets the cached status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if !writeCachedStatus(rec, entry, "u1") {
			t.Fatal("expected the cache entry to be served")
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
		var body struct {
			Status string `json:"status"`
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "paid" {
			t.Errorf("status = %q, want paid", body.Status)
		}
		if body.UserID != "" {
			t.Errorf("owner id leaked into the response body")
		}
	})

	t.Run("other user gets not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if !writeCachedStatus(rec, entry, "u2") {
			t.Fatal("a foreign caller must be answered, not passed to the store")
		}
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %d, want 404", rec.Code)
		}
	})

	t.Run("legacy entry without owner falls through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if writeCachedStatus(rec, `{"status":"paid"}`, "u1") {
			t.Error("entries without an owner must fall back to the store")
		}
		if writeCachedStatus(rec, "not json", "u1") {
			t.Error("garbage entries must fall back to the store")
		}
	})
}

func TestCancelEndpoint(t *testing.T) {
	h, _ := newTestRouter(stock.Product{ID: "p1", PriceCents: 1000, Available: 5})

	rec := postJSON(t, h, "/orders", map[string]any{
		"external_id":    "ext-1",
		"items":          []map[string]any{{"product_id": "p1", "qty": 1}},
		"payment_method": "pix",
	})
	var created CreateOrderResp
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = postJSON(t, h, "/orders/"+created.Order.ID+"/cancel", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel code = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h, "/orders/"+created.Order.ID+"/cancel", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel code = %d, want 409", rec.Code)
	}
}
