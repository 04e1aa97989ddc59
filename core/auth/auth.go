// Package auth issues session tokens and guards routes by capability.
//
// Tokens are scs session tokens sent by clients in the Authorization header
// rather than in a cookie, so the same session store serves the browser app
// and the command line client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/claims"
	"github.com/irsalhamdi/course-shop/core/user"
)

const (
	sessionUserID = "user_id"
	sessionRole   = "role"
)

// LoadSession attaches the session named by the request token to the
// context. A missing or unknown token yields an empty session.
func LoadSession(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			ctx, err := sm.Load(ctx, web.Token(r))
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// Require lets the request through only when the session belongs to a
// logged in user whose claims satisfy allow. The claims are stored in the
// context for the handler.
func Require(sm *scs.SessionManager, allow func(claims.Claims) bool) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			id := sm.GetString(ctx, sessionUserID)
			if id == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			clm := claims.Claims{
				UserID: id,
				Role:   sm.GetString(ctx, sessionRole),
			}
			if !allow(clm) {
				err := fmt.Errorf("user[%s] with role[%s] is not allowed on %s %s", clm.UserID, clm.Role, r.Method, r.URL.Path)
				return weberr.NewError(err, "User not authorized", http.StatusUnauthorized)
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

func Authenticate(sm *scs.SessionManager) web.Middleware {
	return Require(sm, func(claims.Claims) bool { return true })
}

func Admin(sm *scs.SessionManager) web.Middleware {
	return Require(sm, func(c claims.Claims) bool { return c.Role == claims.RoleAdmin })
}

// startSession binds a fresh token to u and returns it.
func startSession(ctx context.Context, sm *scs.SessionManager, u user.User) (string, error) {
	if err := sm.RenewToken(ctx); err != nil {
		return "", fmt.Errorf("renewing session token: %w", err)
	}

	sm.Put(ctx, sessionUserID, u.ID)
	sm.Put(ctx, sessionRole, u.Role)

	token, _, err := sm.Commit(ctx)
	if err != nil {
		return "", fmt.Errorf("committing session: %w", err)
	}
	return token, nil
}

// roleFor grants admin to the configured admin email.
func roleFor(email string, adminEmail string) string {
	if adminEmail != "" && user.NormalizeEmail(email) == user.NormalizeEmail(adminEmail) {
		return claims.RoleAdmin
	}
	return claims.RoleUser
}
