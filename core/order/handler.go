package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/claims"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ords, err := QueryByUser(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}

		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

// HandleShow returns one order to its owner or to an admin. Anyone else
// gets a 404, the same as for a missing order.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("order id %q: %w", id, err))
		}

		o, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(fmt.Errorf("order[%s] not found", id))
			}
			return fmt.Errorf("fetching order: %w", err)
		}

		if o.UserID != clm.UserID && !claims.IsAdmin(ctx) {
			return weberr.NotFound(fmt.Errorf("user[%s] asked for order[%s] of user[%s]", clm.UserID, id, o.UserID))
		}

		return web.Respond(ctx, w, o, http.StatusOK)
	}
}
