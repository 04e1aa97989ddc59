package order

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Status string

const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Failed    Status = "failed"
)

type Order struct {
	ID              string          `json:"id" db:"order_id"`
	UserID          string          `json:"userId" db:"user_id"`
	Items           []Item          `json:"items" db:"-"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	PaymentStatus   Status          `json:"paymentStatus" db:"payment_status"`
	PaymentIntentID string          `json:"paymentIntentId" db:"payment_intent_id"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}

// Item is what the buyer paid for a course at checkout. Title and Price are
// copied from the catalog and never change afterwards.
type Item struct {
	CourseID string          `json:"courseId" db:"course_id"`
	Title    string          `json:"title" db:"title"`
	Price    decimal.Decimal `json:"price" db:"price"`

	// Course is the live catalog entry, nil once the course is deleted.
	Course *Display `json:"course" db:"-"`
}

type Display struct {
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
	VideoURL string `json:"videoUrl"`
}

// Reconciliation records a charge the gateway accepted but the ledger
// failed to store. Operators resolve these by hand.
type Reconciliation struct {
	ID              string          `json:"id" db:"reconciliation_id"`
	UserID          string          `json:"userId" db:"user_id"`
	PaymentIntentID string          `json:"paymentIntentId" db:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	CourseIDs       pq.StringArray  `json:"courseIds" db:"course_ids"`
	Reason          string          `json:"reason" db:"reason"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}
