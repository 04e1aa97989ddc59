package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type StripeConfig struct {
	APISecret string

	// URL overrides the API endpoint, used against stripe-mock and in tests.
	URL       string
	ReturnURL string
	Timeout   time.Duration
}

// Stripe confirms a PaymentIntent synchronously.
type Stripe struct {
	api       *stripecl.API
	returnURL string
	timeout   time.Duration
}

func NewStripe(cfg StripeConfig, log logrus.FieldLogger) *Stripe {
	bcfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.URL != "" {
		bcfg.URL = stripe.String(cfg.URL)
	}

	b := stripe.GetBackendWithConfig(stripe.APIBackend, bcfg)

	api := &stripecl.API{}
	api.Init(cfg.APISecret, &stripe.Backends{API: b, Connect: b, Uploads: b})

	return &Stripe{api: api, returnURL: cfg.ReturnURL, timeout: cfg.Timeout}
}

func (s *Stripe) Charge(ctx context.Context, c Charge) (Receipt, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(c.Amount),
		Currency:      stripe.String(c.Currency),
		PaymentMethod: stripe.String(c.MethodID),
		Confirm:       stripe.Bool(true),
	}
	if s.returnURL != "" {
		params.ReturnURL = stripe.String(s.returnURL)
	}
	params.Context = ctx
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}
	for k, v := range c.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Receipt{}, stripeError(err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		reason := "payment was not completed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return Receipt{}, &Decline{IntentID: pi.ID, Status: string(pi.Status), Reason: reason}
	}

	return Receipt{TransactionID: pi.ID, Status: string(pi.Status)}, nil
}

// stripeError splits failures the buyer can fix from ones they cannot.
func stripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &GatewayError{Err: err}
	}

	switch {
	case se.HTTPStatusCode >= http.StatusInternalServerError,
		se.HTTPStatusCode == http.StatusUnauthorized,
		se.HTTPStatusCode == http.StatusForbidden,
		se.HTTPStatusCode == http.StatusTooManyRequests:
		return &GatewayError{Err: err}
	}

	switch se.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
		d := &Decline{Status: string(se.Code), Reason: se.Msg}
		if se.PaymentIntent != nil {
			d.IntentID = se.PaymentIntent.ID
			d.Status = string(se.PaymentIntent.Status)
		}
		return d
	}

	return &GatewayError{Err: fmt.Errorf("stripe %s: %w", se.Type, err)}
}
