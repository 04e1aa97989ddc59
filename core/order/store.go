package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irsalhamdi/course-shop/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned by Record when the user already has an order for
// the same idempotency key.
var ErrDuplicate = errors.New("order already recorded for this idempotency key")

const idempotencyConstraint = "orders_idempotency_key"

const orderColumns = `order_id, user_id, total_amount, payment_status, payment_intent_id, COALESCE(idempotency_key, '') AS idempotency_key, created_at`

// Record stores the order and its items atomically. Orders are never
// updated or deleted afterwards.
func Record(ctx context.Context, db *sqlx.DB, o Order) error {
	const qo = `
	INSERT INTO orders
		(order_id, user_id, total_amount, payment_status, payment_intent_id, idempotency_key, created_at)
	VALUES
		(:order_id, :user_id, :total_amount, :payment_status, :payment_intent_id, NULLIF(:idempotency_key, ''), :created_at)`

	const qi = `
	INSERT INTO order_items
		(order_id, position, course_id, title, price)
	VALUES
		(:order_id, :position, :course_id, :title, :price)`

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		if err := database.NamedExecContext(ctx, tx, qo, o); err != nil {
			if database.IsDuplicate(err, idempotencyConstraint) {
				return ErrDuplicate
			}
			return fmt.Errorf("inserting order: %w", err)
		}

		for i, it := range o.Items {
			row := struct {
				OrderID  string          `db:"order_id"`
				Position int             `db:"position"`
				CourseID string          `db:"course_id"`
				Title    string          `db:"title"`
				Price    decimal.Decimal `db:"price"`
			}{o.ID, i, it.CourseID, it.Title, it.Price}

			if err := database.NamedExecContext(ctx, tx, qi, row); err != nil {
				return fmt.Errorf("inserting item %d: %w", i, err)
			}
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return err
		}
		return fmt.Errorf("recording order[%s] for user[%s]: %w", o.ID, o.UserID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Order, error) {
	q := `
	SELECT ` + orderColumns + `
	FROM orders
	WHERE order_id = $1`

	var o Order
	if err := sqlx.GetContext(ctx, db, &o, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, database.ErrDBNotFound
		}
		return Order{}, fmt.Errorf("selecting order[%s]: %w", id, err)
	}

	if err := withItems(ctx, db, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

// FetchByKey returns the user's order placed with the idempotency key.
func FetchByKey(ctx context.Context, db sqlx.ExtContext, userID string, key string) (Order, error) {
	q := `
	SELECT ` + orderColumns + `
	FROM orders
	WHERE user_id = $1 AND idempotency_key = $2`

	var o Order
	if err := sqlx.GetContext(ctx, db, &o, q, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, database.ErrDBNotFound
		}
		return Order{}, fmt.Errorf("selecting order by key for user[%s]: %w", userID, err)
	}

	if err := withItems(ctx, db, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

// QueryByUser lists the user's orders, newest first.
func QueryByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Order, error) {
	q := `
	SELECT ` + orderColumns + `
	FROM orders
	WHERE user_id = $1
	ORDER BY created_at DESC, order_id`

	ords := []Order{}
	if err := sqlx.SelectContext(ctx, db, &ords, q, userID); err != nil {
		return nil, fmt.Errorf("selecting orders of user[%s]: %w", userID, err)
	}

	ptrs := make([]*Order, len(ords))
	for i := range ords {
		ptrs[i] = &ords[i]
	}
	if err := withItems(ctx, db, ptrs); err != nil {
		return nil, err
	}
	return ords, nil
}

type itemRow struct {
	OrderID     string          `db:"order_id"`
	CourseID    string          `db:"course_id"`
	Title       string          `db:"title"`
	Price       decimal.Decimal `db:"price"`
	CourseTitle sql.NullString  `db:"course_title"`
	CourseImage sql.NullString  `db:"course_image_url"`
	CourseVideo sql.NullString  `db:"course_video_url"`
}

// withItems loads the items of every order in one query and resolves the
// course each item refers to, if it still exists.
func withItems(ctx context.Context, db sqlx.ExtContext, ords []*Order) error {
	if len(ords) == 0 {
		return nil
	}

	ids := make([]string, len(ords))
	byID := make(map[string]*Order, len(ords))
	for i, o := range ords {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []Item{}
	}

	const q = `
	SELECT
		i.order_id, i.course_id, i.title, i.price,
		c.title AS course_title, c.image_url AS course_image_url, c.video_url AS course_video_url
	FROM order_items i
	LEFT JOIN courses c ON c.course_id = i.course_id
	WHERE i.order_id = ANY($1::uuid[])
	ORDER BY i.order_id, i.position`

	var rows []itemRow
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("selecting order items: %w", err)
	}

	for _, r := range rows {
		it := Item{CourseID: r.CourseID, Title: r.Title, Price: r.Price}
		if r.CourseTitle.Valid {
			it.Course = &Display{
				Title:    r.CourseTitle.String,
				ImageURL: r.CourseImage.String,
				VideoURL: r.CourseVideo.String,
			}
		}
		if o, ok := byID[r.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return nil
}

func RecordReconciliation(ctx context.Context, db sqlx.ExtContext, r Reconciliation) error {
	const q = `
	INSERT INTO reconciliations
		(reconciliation_id, user_id, payment_intent_id, amount, currency, course_ids, reason, created_at)
	VALUES
		(:reconciliation_id, :user_id, :payment_intent_id, :amount, :currency, :course_ids, :reason, :created_at)`

	if err := database.NamedExecContext(ctx, db, q, r); err != nil {
		return fmt.Errorf("inserting reconciliation for payment[%s]: %w", r.PaymentIntentID, err)
	}
	return nil
}
