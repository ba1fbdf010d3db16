package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lojabr/checkout-core/internal/fees"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "sk_test", 2*time.Second, nil)
	c.BackoffBase = time.Millisecond
	return c
}

func TestCreateIntent_SendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: "requires_confirmation", AmountCents: 10099})
	}))
	defer srv.Close()

	it, err := newTestClient(srv.URL).CreateIntent(context.Background(), CreateIntentInput{
		OrderID: "o1", AmountCents: 10099, Method: fees.MethodPix,
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != "order:o1:intent" {
		t.Errorf("idempotency key = %q, want order:o1:intent", gotKey)
	}
	if gotAuth != "Bearer sk_test" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if it.ID != "pi_1" || it.Status != StatusRequiresAction {
		t.Errorf("intent = %+v", it)
	}
}

func TestCreateIntent_RetriesOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: "succeeded"})
	}))
	defer srv.Close()

	it, err := newTestClient(srv.URL).CreateIntent(context.Background(), CreateIntentInput{OrderID: "o1", AmountCents: 100, Method: fees.MethodCreditCard})
	if err != nil {
		t.Fatal(err)
	}
	if it.Status != StatusSucceeded {
		t.Errorf("status = %s", it.Status)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestCreateIntent_ExhaustedRetriesIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateIntent(context.Background(), CreateIntentInput{OrderID: "o1", AmountCents: 100, Method: fees.MethodPix})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreateIntent_DeclineIsRejectedWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"card_declined","message":"Your card was declined"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateIntent(context.Background(), CreateIntentInput{OrderID: "o1", AmountCents: 100, Method: fees.MethodCreditCard})
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, declines must not be retried", n)
	}
}

func TestConfirmIntent_NeverRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ConfirmIntent(context.Background(), "pi_1", "pm_1")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, confirm must be sent exactly once", n)
	}
}

func TestCreateRefund_PartialAmountAndKey(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(Refund{ID: "re_1", Status: "succeeded", AmountCents: 500})
	}))
	defer srv.Close()

	rf, err := newTestClient(srv.URL).CreateRefund(context.Background(), "o1", "pi_1", 500)
	if err != nil {
		t.Fatal(err)
	}
	if gotKey != "order:o1:refund:500" {
		t.Errorf("idempotency key = %q", gotKey)
	}
	if gotBody["payment_intent"] != "pi_1" || gotBody["amount"] != float64(500) {
		t.Errorf("body = %v", gotBody)
	}
	if rf.Status != StatusSucceeded || rf.AmountCents != 500 {
		t.Errorf("refund = %+v", rf)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]IntentStatus{
		"succeeded":               StatusSucceeded,
		"requires_action":         StatusRequiresAction,
		"requires_confirmation":   StatusRequiresAction,
		"requires_payment_method": StatusRequiresAction,
		"canceled":                StatusFailed,
		"failed":                  StatusFailed,
		"processing":              StatusPending,
		"":                        StatusPending,
	}
	for in, want := range cases {
		if got := normalizeStatus(in); got != want {
			t.Errorf("normalizeStatus(%q) = %s, want %s", in, got, want)
		}
	}
}
