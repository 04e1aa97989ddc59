package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/user"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/rate"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

type Registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func HandleRegister(db *sqlx.DB, sm *scs.SessionManager, adminEmail string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var reg Registration
		if err := web.Decode(w, r, &reg); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(reg); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		u, err := user.New(user.UserNew{
			Name:     reg.Name,
			Email:    reg.Email,
			Password: reg.Password,
			Role:     roleFor(reg.Email, adminEmail),
		})
		if err != nil {
			return err
		}

		if err := user.Create(ctx, db, u); err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				return weberr.NewError(err, "User already exists", http.StatusBadRequest)
			}
			return fmt.Errorf("registering user: %w", err)
		}

		token, err := startSession(ctx, sm, u)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, TokenResponse{token}, http.StatusOK)
	}
}

func HandleLogin(db *sqlx.DB, sm *scs.SessionManager, lim *rate.Limiter) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cred Credentials
		if err := web.Decode(w, r, &cred); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cred); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		email := user.NormalizeEmail(cred.Email)
		if lim != nil && !lim.Check(email) {
			return weberr.TooManyRequests(fmt.Errorf("too many login attempts for %s", email))
		}

		invalid := func(err error) error {
			return weberr.NewError(err, "Invalid credentials", http.StatusUnauthorized)
		}

		u, err := user.FetchByEmail(ctx, db, email)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return invalid(fmt.Errorf("no user with email %s", email))
			}
			return fmt.Errorf("fetching user: %w", err)
		}

		if len(u.PasswordHash) == 0 {
			return invalid(fmt.Errorf("user[%s] has no password, signed up through oauth", u.ID))
		}

		if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(cred.Password)); err != nil {
			return invalid(fmt.Errorf("user[%s]: %w", u.ID, err))
		}

		token, err := startSession(ctx, sm, u)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, TokenResponse{token}, http.StatusOK)
	}
}

func HandleLogout(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := sm.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
