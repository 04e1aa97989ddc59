package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/jmoiron/sqlx"
)

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", id, err))
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NewError(err, "Course not found", http.StatusNotFound)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := Query(ctx, db)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cn CourseNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if cn.Price == nil {
			err := errors.New("price is a required field")
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if !validate.Cents(*cn.Price) {
			err := errors.New("price must have at most two decimal places")
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		now := time.Now().UTC()
		c := Course{
			ID:          validate.GenerateID(),
			Title:       cn.Title,
			Description: cn.Description,
			Price:       *cn.Price,
			ImageURL:    cn.ImageURL,
			VideoURL:    cn.VideoURL,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}

		if err := Create(ctx, db, c); err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", id, err))
		}

		var up CourseUp
		if err := web.Decode(w, r, &up); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(up); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if up.Price != nil && !validate.Cents(*up.Price) {
			err := errors.New("price must have at most two decimal places")
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NewError(err, "Course not found", http.StatusNotFound)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		c = up.Apply(c)
		c.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, c); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return weberr.Conflict(err)
			}
			return fmt.Errorf("updating course[%s]: %w", id, err)
		}
		c.Version++

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", id, err))
		}

		if err := Delete(ctx, db, id); err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NewError(err, "Course not found", http.StatusNotFound)
			}
			return fmt.Errorf("deleting course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, weberr.ErrorResponse{Msg: "Course removed"}, http.StatusOK)
	}
}
