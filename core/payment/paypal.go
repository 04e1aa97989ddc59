package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

const paypalCompleted = "COMPLETED"

// Paypal captures an order the buyer already approved in the PayPal popup.
// The approved order id arrives as the charge's MethodID; its amount must
// match the server computed total before anything is captured.
type Paypal struct {
	client  *paypal.Client
	timeout time.Duration
}

func NewPaypal(client *paypal.Client, timeout time.Duration) *Paypal {
	return &Paypal{client: client, timeout: timeout}
}

func (p *Paypal) Charge(ctx context.Context, c Charge) (Receipt, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ord, err := p.client.GetOrder(ctx, c.MethodID)
	if err != nil {
		return Receipt{}, paypalError(c.MethodID, err)
	}

	if err := matchAmount(ord, c); err != nil {
		return Receipt{}, &Decline{IntentID: ord.ID, Status: ord.Status, Reason: err.Error()}
	}

	resp, err := p.client.CaptureOrder(ctx, ord.ID, paypal.CaptureOrderRequest{})
	if err != nil {
		return Receipt{}, paypalError(ord.ID, err)
	}

	if resp.Status != paypalCompleted {
		return Receipt{}, &Decline{IntentID: ord.ID, Status: resp.Status, Reason: "paypal order was not completed"}
	}

	txID := resp.ID
	if len(resp.PurchaseUnits) > 0 && resp.PurchaseUnits[0].Payments != nil && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		txID = resp.PurchaseUnits[0].Payments.Captures[0].ID
	}

	return Receipt{TransactionID: txID, Status: resp.Status}, nil
}

func matchAmount(ord *paypal.Order, c Charge) error {
	if len(ord.PurchaseUnits) != 1 || ord.PurchaseUnits[0].Amount == nil {
		return errors.New("paypal order must have exactly one purchase unit")
	}
	amt := ord.PurchaseUnits[0].Amount

	if !strings.EqualFold(amt.Currency, c.Currency) {
		return fmt.Errorf("paypal order currency %s does not match %s", amt.Currency, c.Currency)
	}

	got, err := decimal.NewFromString(amt.Value)
	if err != nil {
		return fmt.Errorf("paypal order amount %q is not a number", amt.Value)
	}

	want := decimal.New(c.Amount, -2)
	if !got.Equal(want) {
		return fmt.Errorf("paypal order amount %s does not match the order total %s", got.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

func paypalError(id string, err error) error {
	var er *paypal.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		code := er.Response.StatusCode
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
			code != http.StatusUnauthorized && code != http.StatusTooManyRequests {
			reason := er.Message
			if len(er.Details) > 0 && er.Details[0].Issue != "" {
				reason = er.Details[0].Issue
			}
			return &Decline{IntentID: id, Status: er.Name, Reason: reason}
		}
	}
	return &GatewayError{Err: fmt.Errorf("paypal order[%s]: %w", id, err)}
}
