package test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	mock "github.com/stripe/stripe-mock/param"
)

// mockStripe confirms payment intents. A payment method named
// pm_card_chargeDeclined is refused the way Stripe refuses test cards.
type mockStripe struct {
	mu      sync.Mutex
	charges map[string]string
	amounts []string
}

func newMockStripe() *mockStripe {
	return &mockStripe{charges: make(map[string]string)}
}

// Amounts lists the amounts of every distinct charge in cents.
func (m *mockStripe) Amounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.amounts...)
}

func (m *mockStripe) handle() http.Handler {
	intents := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			reply(w, http.StatusBadRequest, nil)
			return
		}

		if params["payment_method"] == "pm_card_chargeDeclined" {
			reply(w, http.StatusPaymentRequired, map[string]any{
				"error": map[string]any{
					"type":    "card_error",
					"code":    "card_declined",
					"message": "Your card was declined.",
					"payment_intent": map[string]any{
						"id":     "pi_declined",
						"status": "requires_payment_method",
					},
				},
			})
			return
		}

		m.mu.Lock()
		key := r.Header.Get("Idempotency-Key")
		id, seen := m.charges[key]
		if !seen {
			id = fmt.Sprintf("pi_%d", len(m.charges)+1)
			m.charges[key] = id
			m.amounts = append(m.amounts, fmt.Sprint(params["amount"]))
		}
		m.mu.Unlock()

		reply(w, http.StatusOK, map[string]any{"id": id, "object": "payment_intent", "status": "succeeded"})
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", intents).Methods(http.MethodPost)
	return r
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
