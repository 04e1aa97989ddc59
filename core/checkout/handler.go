package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/claims"
	"github.com/irsalhamdi/course-shop/core/payment"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/shopspring/decimal"
)

const idempotencyHeader = "Idempotency-Key"

type CheckoutNew struct {
	CourseIDs       []string         `json:"courseIds"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"`
	PaymentMethodID string           `json:"paymentMethodId" validate:"required"`
	IdempotencyKey  string           `json:"idempotencyKey" validate:"omitempty,max=255"`
}

type CheckoutResponse struct {
	Success         bool   `json:"success"`
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type PaymentFailedResponse struct {
	Msg                 string `json:"msg"`
	PaymentIntentStatus string `json:"paymentIntentStatus"`
	Reason              string `json:"reason,omitempty"`
}

func HandleCheckout(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var cn CheckoutNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if cn.IdempotencyKey == "" {
			cn.IdempotencyKey = r.Header.Get(idempotencyHeader)
		}

		if err := validateCheckout(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		res, err := svc.Checkout(ctx, Request{
			UserID:          clm.UserID,
			CourseIDs:       cn.CourseIDs,
			ClaimedTotal:    *cn.TotalAmount,
			PaymentMethodID: cn.PaymentMethodID,
			IdempotencyKey:  cn.IdempotencyKey,
		})
		if err != nil {
			return checkoutError(err)
		}

		resp := CheckoutResponse{
			Success:         true,
			OrderID:         res.Order.ID,
			PaymentIntentID: res.Order.PaymentIntentID,
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func validateCheckout(cn CheckoutNew) error {
	if err := validate.Check(cn); err != nil {
		return err
	}
	if cn.TotalAmount == nil {
		return errors.New("totalAmount is a required field")
	}
	if cn.TotalAmount.IsNegative() {
		return errors.New("totalAmount must be 0 or greater")
	}
	return nil
}

func checkoutError(err error) error {
	var decline *payment.Decline
	var unrecorded *UnrecordedPaymentError

	switch {
	case errors.Is(err, ErrEmptyCart):
		return weberr.NewError(err, "Cart is empty", http.StatusBadRequest)

	case errors.Is(err, ErrPriceMismatch):
		return weberr.NewError(err, "Total amount mismatch", http.StatusBadRequest)

	case errors.As(err, &decline):
		body := PaymentFailedResponse{
			Msg:                 "Payment failed",
			PaymentIntentStatus: decline.Status,
			Reason:              decline.Reason,
		}
		return weberr.Wrap(err,
			weberr.WithResponse(body, http.StatusBadRequest),
			weberr.WithFields(map[string]interface{}{"payment_intent_id": decline.IntentID}),
		)

	case errors.Is(err, payment.ErrGateway):
		return weberr.NewError(err, "Payment service unavailable", http.StatusServiceUnavailable)

	case errors.As(err, &unrecorded):
		return weberr.InternalError(err, weberr.WithFields(map[string]interface{}{
			"payment_intent_id": unrecorded.PaymentIntentID,
		}))
	}

	return fmt.Errorf("checkout: %w", err)
}
