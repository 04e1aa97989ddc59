// Package checkout turns a cart into a paid order.
//
// A checkout is a two step saga: the gateway charges the server computed
// total, then the ledger records the order. The steps cannot share a
// transaction, so a ledger failure after a successful charge leaves a
// reconciliation record and event behind for operators instead of losing
// track of the money.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/course-shop/core/order"
	"github.com/irsalhamdi/course-shop/core/payment"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/events"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const detachedTimeout = 10 * time.Second

type Ledger interface {
	FetchByKey(ctx context.Context, userID string, key string) (order.Order, error)
	Record(ctx context.Context, o order.Order) error
}

type Reconciler interface {
	RecordReconciliation(ctx context.Context, r order.Reconciliation) error
}

type Runner interface {
	Go(fn func())
}

type Service struct {
	Catalog    Catalog
	Ledger     Ledger
	Reconciler Reconciler
	Gateway    payment.Gateway
	Events     events.Publisher
	Background Runner
	Log        logrus.FieldLogger
	Currency   string
	Now        func() time.Time
}

type Request struct {
	UserID          string
	CourseIDs       []string
	ClaimedTotal    decimal.Decimal
	PaymentMethodID string
	IdempotencyKey  string
}

type Result struct {
	Order order.Order

	// Replayed is set when the order was placed by an earlier request with
	// the same idempotency key and nothing was charged this time.
	Replayed bool
}

// UnrecordedPaymentError means the buyer was charged but no order exists.
type UnrecordedPaymentError struct {
	PaymentIntentID string
	UserID          string
	Amount          decimal.Decimal
	Err             error
}

func (e *UnrecordedPaymentError) Error() string {
	return fmt.Sprintf("payment[%s] of %s by user[%s] was captured but not recorded: %v", e.PaymentIntentID, e.Amount.StringFixed(2), e.UserID, e.Err)
}

func (e *UnrecordedPaymentError) Unwrap() error { return e.Err }

func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey != "" {
		o, err := s.Ledger.FetchByKey(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case err == nil:
			return Result{Order: o, Replayed: true}, nil
		case !errors.Is(err, database.ErrDBNotFound):
			return Result{}, fmt.Errorf("looking up idempotency key: %w", err)
		}
	}

	quote, err := Verify(ctx, s.Catalog, req.CourseIDs, req.ClaimedTotal)
	if err != nil {
		return Result{}, err
	}

	rcpt, err := s.Gateway.Charge(ctx, s.charge(req, quote))
	if err != nil {
		return Result{}, err
	}

	o := order.Order{
		ID:              validate.GenerateID(),
		UserID:          req.UserID,
		Items:           make([]order.Item, len(quote.Courses)),
		TotalAmount:     quote.Total,
		PaymentStatus:   order.Completed,
		PaymentIntentID: rcpt.TransactionID,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       s.now(),
	}
	for i, c := range quote.Courses {
		o.Items[i] = order.Item{CourseID: c.ID, Title: c.Title, Price: c.Price}
	}

	if err := s.Ledger.Record(ctx, o); err != nil {
		// A concurrent request with the same key won the insert.
		if errors.Is(err, order.ErrDuplicate) {
			if prev, ferr := s.Ledger.FetchByKey(ctx, req.UserID, req.IdempotencyKey); ferr == nil {
				return Result{Order: prev, Replayed: true}, nil
			}
		}
		return Result{}, s.unrecorded(ctx, req, quote, rcpt, err)
	}

	s.Background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()

		if err := s.Events.Publish(ctx, events.OrderCompleted, o); err != nil {
			s.Log.WithError(err).WithField("order_id", o.ID).Warn("publishing order completed")
		}
	})

	return Result{Order: o}, nil
}

func (s *Service) charge(req Request, quote Quote) payment.Charge {
	c := payment.Charge{
		Amount:   quote.Total.Shift(2).IntPart(),
		Currency: s.Currency,
		MethodID: req.PaymentMethodID,
		Metadata: map[string]string{
			"userId":    req.UserID,
			"courseIds": strings.Join(courseIDs(quote), ","),
		},
	}
	if req.IdempotencyKey != "" {
		// Gateway keys are global, ours are per user.
		c.IdempotencyKey = req.UserID + ":" + req.IdempotencyKey
	}
	return c
}

// unrecorded leaves a trail for a payment the ledger could not store. It
// runs on a detached context: the request may already be cancelled, which
// is often why the ledger failed in the first place.
func (s *Service) unrecorded(ctx context.Context, req Request, quote Quote, rcpt payment.Receipt, cause error) error {
	log := s.Log.WithFields(logrus.Fields{
		"payment_intent_id": rcpt.TransactionID,
		"user_id":           req.UserID,
		"amount":            quote.Total.StringFixed(2),
		"currency":          s.Currency,
	})
	log.WithError(cause).Error("reconciliation required")

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()

	rec := order.Reconciliation{
		ID:              validate.GenerateID(),
		UserID:          req.UserID,
		PaymentIntentID: rcpt.TransactionID,
		Amount:          quote.Total,
		Currency:        s.Currency,
		CourseIDs:       courseIDs(quote),
		Reason:          cause.Error(),
		CreatedAt:       s.now(),
	}

	if err := s.Reconciler.RecordReconciliation(dctx, rec); err != nil {
		log.WithError(err).Error("storing reconciliation record")
	}
	if err := s.Events.Publish(dctx, events.ReconciliationRequired, rec); err != nil {
		log.WithError(err).Error("publishing reconciliation event")
	}

	return &UnrecordedPaymentError{
		PaymentIntentID: rcpt.TransactionID,
		UserID:          req.UserID,
		Amount:          quote.Total,
		Err:             cause,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func courseIDs(q Quote) []string {
	ids := make([]string, len(q.Courses))
	for i, c := range q.Courses {
		ids[i] = c.ID
	}
	return ids
}
