package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/irsalhamdi/course-shop/core/course"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrPriceMismatch = errors.New("total amount mismatch")
)

type Catalog interface {
	FetchMany(ctx context.Context, ids []string) ([]course.Course, error)
}

// Quote is the catalog's view of a cart: the courses that still exist, in
// the order the buyer listed them, and what they cost now.
type Quote struct {
	Courses []course.Course
	Total   decimal.Decimal
}

// Verify reprices ids from the catalog and checks the result against the
// total the client claims, to the cent. Ids that are malformed, repeated or
// no longer in the catalog do not count towards the total.
func Verify(ctx context.Context, catalog Catalog, ids []string, claimed decimal.Decimal) (Quote, error) {
	if len(ids) == 0 {
		return Quote{}, ErrEmptyCart
	}

	seen := make(map[string]bool, len(ids))
	wanted := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] || validate.CheckID(id) != nil {
			continue
		}
		seen[id] = true
		wanted = append(wanted, id)
	}
	if len(wanted) == 0 {
		return Quote{}, ErrEmptyCart
	}

	found, err := catalog.FetchMany(ctx, wanted)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching cart courses: %w", err)
	}

	byID := make(map[string]course.Course, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	q := Quote{Courses: make([]course.Course, 0, len(found)), Total: decimal.Zero}
	for _, id := range wanted {
		c, ok := byID[id]
		if !ok {
			continue
		}
		q.Courses = append(q.Courses, c)
		q.Total = q.Total.Add(c.Price)
	}
	if len(q.Courses) == 0 {
		return Quote{}, ErrEmptyCart
	}

	if q.Total.StringFixed(2) != claimed.StringFixed(2) {
		return Quote{}, fmt.Errorf("%w: catalog total %s, claimed %s", ErrPriceMismatch, q.Total.StringFixed(2), claimed.StringFixed(2))
	}

	q.Total = q.Total.Round(2)
	return q, nil
}
