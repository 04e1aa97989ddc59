// Package payment charges buyers through an external gateway.
//
// A charge either succeeds with a Receipt, is declined by the gateway
// (*Decline, the buyer must change their payment details) or fails in
// transit (*GatewayError, the outcome is unknown and the whole checkout may
// be retried). Adapters never retry on their own.
package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDeclined = errors.New("payment declined")
	ErrGateway  = errors.New("payment gateway unavailable")
)

type Charge struct {
	// Amount in the currency's minor unit, cents for usd.
	Amount   int64
	Currency string

	// MethodID is the client supplied payment method token.
	MethodID       string
	IdempotencyKey string
	Metadata       map[string]string
}

type Receipt struct {
	TransactionID string
	Status        string
}

type Gateway interface {
	Charge(ctx context.Context, c Charge) (Receipt, error)
}

type Decline struct {
	IntentID string
	Status   string
	Reason   string
}

func (d *Decline) Error() string {
	return fmt.Sprintf("payment[%s] declined with status %q: %s", d.IntentID, d.Status, d.Reason)
}

func (d *Decline) Is(target error) bool { return target == ErrDeclined }

type GatewayError struct {
	Err error
}

func (g *GatewayError) Error() string { return "payment gateway: " + g.Err.Error() }

func (g *GatewayError) Unwrap() error { return g.Err }

func (g *GatewayError) Is(target error) bool { return target == ErrGateway }
