package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lojabr/checkout-core/internal/fees"
)

var (
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	ErrGatewayRejected    = errors.New("payments: gateway rejected the payment")
)

// IntentStatus is the normalized view of the gateway's intent states.
type IntentStatus string

const (
	StatusSucceeded      IntentStatus = "succeeded"
	StatusRequiresAction IntentStatus = "requires_action"
	StatusFailed         IntentStatus = "failed"
	StatusPending        IntentStatus = "pending"
)

type Intent struct {
	ID           string       `json:"id"`
	Status       IntentStatus `json:"status"`
	ClientSecret string       `json:"client_secret,omitempty"`
	AmountCents  int64        `json:"amount"`
}

type Refund struct {
	ID          string       `json:"id"`
	Status      IntentStatus `json:"status"`
	AmountCents int64        `json:"amount"`
}

type CreateIntentInput struct {
	OrderID     string
	AmountCents int64
	Method      fees.Method
}

// Client talks to the external gateway. Create calls are retried with
// bounded exponential backoff; confirm and refund are sent exactly once per
// call and rely on the gateway-side idempotency key instead of blind
// retries, so a duplicate submission can never double-charge.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Log        *zap.Logger

	MaxRetries  int
	BackoffBase time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		HTTPClient:  &http.Client{Timeout: timeout},
		Log:         log,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
	}
}

// IntentIdempotencyKey derives the gateway idempotency key for intent
// creation from the order id, so retried creates collapse into one intent.
func IntentIdempotencyKey(orderID string) string {
	return "order:" + orderID + ":intent"
}

func RefundIdempotencyKey(orderID string, amountCents int64) string {
	return fmt.Sprintf("order:%s:refund:%d", orderID, amountCents)
}

func (c *Client) CreateIntent(ctx context.Context, in CreateIntentInput) (Intent, error) {
	body := map[string]any{
		"amount":               in.AmountCents,
		"currency":             "brl",
		"payment_method_types": methodTypes(in.Method),
		"metadata":             map[string]string{"order_id": in.OrderID},
	}

	var out Intent
	var lastErr error
	backoff := c.BackoffBase
	for attempt := 0; attempt < c.retries(); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
			}
			backoff *= 2
		}

		err := c.post(ctx, "/v1/payment_intents", IntentIdempotencyKey(in.OrderID), body, &out)
		if err == nil {
			out.Status = normalizeStatus(string(out.Status))
			return out, nil
		}
		if errors.Is(err, ErrGatewayRejected) {
			return Intent{}, err
		}
		lastErr = err
		c.Log.Warn("gateway create intent failed, will retry",
			zap.String("order_id", in.OrderID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}

// ConfirmIntent confirms an intent. Never retried here: a transport error
// leaves the gateway-side state unknown, and the caller must re-read via
// webhook or confirm again explicitly.
func (c *Client) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (Intent, error) {
	body := map[string]any{}
	if paymentMethodID != "" {
		body["payment_method"] = paymentMethodID
	}
	var out Intent
	if err := c.post(ctx, "/v1/payment_intents/"+intentID+"/confirm", "", body, &out); err != nil {
		return Intent{}, err
	}
	out.Status = normalizeStatus(string(out.Status))
	return out, nil
}

// CreateRefund refunds an intent, fully when amountCents is zero.
func (c *Client) CreateRefund(ctx context.Context, orderID, intentID string, amountCents int64) (Refund, error) {
	body := map[string]any{"payment_intent": intentID}
	if amountCents > 0 {
		body["amount"] = amountCents
	}
	var out Refund
	if err := c.post(ctx, "/v1/refunds", RefundIdempotencyKey(orderID, amountCents), body, &out); err != nil {
		return Refund{}, err
	}
	out.Status = normalizeStatus(string(out.Status))
	return out, nil
}

func (c *Client) retries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 1
}

type gatewayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path, idemKey string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.Unmarshal(raw, out)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	default:
		var ge gatewayError
		_ = json.Unmarshal(raw, &ge)
		if ge.Error.Message != "" {
			return fmt.Errorf("%w: %s (%s)", ErrGatewayRejected, ge.Error.Message, ge.Error.Code)
		}
		return fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}
}

func methodTypes(m fees.Method) []string {
	switch m {
	case fees.MethodPix:
		return []string{"pix"}
	case fees.MethodBoleto:
		return []string{"boleto"}
	default:
		return []string{"card"}
	}
}

func normalizeStatus(s string) IntentStatus {
	switch s {
	case "succeeded":
		return StatusSucceeded
	case "requires_action", "requires_confirmation", "requires_payment_method":
		return StatusRequiresAction
	case "canceled", "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
