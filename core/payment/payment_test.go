package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mock "github.com/stripe/stripe-mock/param"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type stripeCall struct {
	params map[string]any
	key    string
}

func fakeStripe(t *testing.T, reply func(w http.ResponseWriter, r *http.Request)) (*Stripe, <-chan stripeCall) {
	t.Helper()
	calls := make(chan stripeCall, 10)

	r := mux.NewRouter()
	r.HandleFunc("/v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, nil)
			return
		}
		calls <- stripeCall{params: params, key: r.Header.Get("Idempotency-Key")}
		reply(w, r)
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	s := NewStripe(StripeConfig{APISecret: "sk_test_123", URL: srv.URL, Timeout: 200 * time.Millisecond}, quietLog())
	return s, calls
}

func TestStripeSucceeded(t *testing.T) {
	s, calls := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "pi_1", "object": "payment_intent", "status": "succeeded"})
	})

	rcpt, err := s.Charge(context.Background(), Charge{
		Amount:         3550,
		Currency:       "usd",
		MethodID:       "pm_card_visa",
		IdempotencyKey: "key-1",
		Metadata:       map[string]string{"userId": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Receipt{TransactionID: "pi_1", Status: "succeeded"}, rcpt)

	call := <-calls
	assert.Equal(t, "3550", call.params["amount"])
	assert.Equal(t, "usd", call.params["currency"])
	assert.Equal(t, "pm_card_visa", call.params["payment_method"])
	assert.Equal(t, "true", call.params["confirm"])
	assert.Equal(t, "key-1", call.key)

	md, ok := call.params["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", md["userId"])
}

func TestStripeCardDeclined(t *testing.T) {
	s, _ := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error": map[string]any{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
				"payment_intent": map[string]any{
					"id":     "pi_2",
					"object": "payment_intent",
					"status": "requires_payment_method",
				},
			},
		})
	})

	_, err := s.Charge(context.Background(), Charge{Amount: 100, Currency: "usd", MethodID: "pm_card_chargeDeclined"})
	require.ErrorIs(t, err, ErrDeclined)
	assert.NotErrorIs(t, err, ErrGateway)

	var d *Decline
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "pi_2", d.IntentID)
	assert.Equal(t, "requires_payment_method", d.Status)
	assert.Equal(t, "Your card was declined.", d.Reason)
}

func TestStripeIncompleteIntentIsDeclined(t *testing.T) {
	s, _ := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "pi_3", "object": "payment_intent", "status": "requires_action"})
	})

	_, err := s.Charge(context.Background(), Charge{Amount: 100, Currency: "usd", MethodID: "pm_3ds"})

	var d *Decline
	require.True(t, errors.As(err, &d))
	assert.Equal(t, "requires_action", d.Status)
}

func TestStripeServerErrorIsGatewayError(t *testing.T) {
	s, calls := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"type": "api_error", "message": "something broke"},
		})
	})

	_, err := s.Charge(context.Background(), Charge{Amount: 100, Currency: "usd", MethodID: "pm_card_visa"})
	assert.ErrorIs(t, err, ErrGateway)
	assert.NotErrorIs(t, err, ErrDeclined)

	<-calls
	assert.Len(t, calls, 0, "the adapter retried the charge")
}

func TestStripeTimeoutIsGatewayError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s, _ := fakeStripe(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	_, err := s.Charge(context.Background(), Charge{Amount: 100, Currency: "usd", MethodID: "pm_card_visa"})
	assert.ErrorIs(t, err, ErrGateway)
	assert.NotErrorIs(t, err, ErrDeclined)
}

type fakePaypal struct {
	amount   string
	currency string
	captures atomic.Int32
	decline  bool
}

func (f *fakePaypal) handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	}).Methods(http.MethodPost)

	r.HandleFunc("/v2/checkout/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if id == "missing" {
			writeJSON(w, http.StatusNotFound, map[string]any{"name": "RESOURCE_NOT_FOUND", "message": "order not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     id,
			"status": "APPROVED",
			"purchase_units": []any{
				map[string]any{"amount": map[string]any{"currency_code": f.currency, "value": f.amount}},
			},
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captures.Add(1)
		if f.decline {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"name":    "UNPROCESSABLE_ENTITY",
				"message": "The requested action could not be performed.",
				"details": []any{map[string]any{"issue": "INSTRUMENT_DECLINED"}},
			})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":     mux.Vars(r)["id"],
			"status": "COMPLETED",
			"purchase_units": []any{
				map[string]any{"payments": map[string]any{"captures": []any{map[string]any{"id": "cap_1"}}}},
			},
		})
	}).Methods(http.MethodPost)

	return r
}

func newPaypal(t *testing.T, f *fakePaypal) *Paypal {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := paypal.NewClient("client", "secret", srv.URL)
	require.NoError(t, err)
	_, err = c.GetAccessToken(context.Background())
	require.NoError(t, err)

	return NewPaypal(c, time.Second)
}

func TestPaypalCapture(t *testing.T) {
	f := &fakePaypal{amount: "35.50", currency: "USD"}
	p := newPaypal(t, f)

	rcpt, err := p.Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "ORDER-1"})
	require.NoError(t, err)
	assert.Equal(t, Receipt{TransactionID: "cap_1", Status: "COMPLETED"}, rcpt)
	assert.EqualValues(t, 1, f.captures.Load())
}

func TestPaypalAmountMismatchIsNotCaptured(t *testing.T) {
	f := &fakePaypal{amount: "1.00", currency: "USD"}
	p := newPaypal(t, f)

	_, err := p.Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "ORDER-1"})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.EqualValues(t, 0, f.captures.Load())

	f.amount = "35.50"
	f.currency = "EUR"
	_, err = p.Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "ORDER-1"})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.EqualValues(t, 0, f.captures.Load())
}

func TestPaypalDeclines(t *testing.T) {
	f := &fakePaypal{amount: "35.50", currency: "USD", decline: true}
	p := newPaypal(t, f)

	_, err := p.Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "ORDER-1"})
	var d *Decline
	require.True(t, errors.As(err, &d), "got %v", err)
	assert.Equal(t, "INSTRUMENT_DECLINED", d.Reason)

	_, err = p.Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "missing"})
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestPaypalUnreachableIsGatewayError(t *testing.T) {
	f := &fakePaypal{amount: "35.50", currency: "USD"}
	srv := httptest.NewServer(f.handler())

	c, err := paypal.NewClient("client", "secret", srv.URL)
	require.NoError(t, err)
	_, err = c.GetAccessToken(context.Background())
	require.NoError(t, err)
	srv.Close()

	_, err = NewPaypal(c, time.Second).Charge(context.Background(), Charge{Amount: 3550, Currency: "usd", MethodID: "ORDER-1"})
	assert.ErrorIs(t, err, ErrGateway)
}
