package checkout

import (
	"context"

	"github.com/irsalhamdi/course-shop/core/course"
	"github.com/irsalhamdi/course-shop/core/order"
	"github.com/jmoiron/sqlx"
)

// Store backs the service's catalog, ledger and reconciler with Postgres.
type Store struct {
	DB *sqlx.DB
}

func (s Store) FetchMany(ctx context.Context, ids []string) ([]course.Course, error) {
	return course.FetchMany(ctx, s.DB, ids)
}

func (s Store) FetchByKey(ctx context.Context, userID string, key string) (order.Order, error) {
	return order.FetchByKey(ctx, s.DB, userID, key)
}

func (s Store) Record(ctx context.Context, o order.Order) error {
	return order.Record(ctx, s.DB, o)
}

func (s Store) RecordReconciliation(ctx context.Context, r order.Reconciliation) error {
	return order.RecordReconciliation(ctx, s.DB, r)
}
