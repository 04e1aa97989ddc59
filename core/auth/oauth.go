package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/user"
	"github.com/irsalhamdi/course-shop/database"
	"github.com/irsalhamdi/course-shop/random"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
)

const (
	sessionOauthProvider = "oauth_provider"
	sessionOauthNonce    = "oauth_nonce"
)

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

type Provider struct {
	Name     string
	OAuth    oauth2.Config
	Verifier *oidc.IDTokenVerifier
}

// MakeProviders discovers every configured OIDC provider. Entries without a
// client id are skipped.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Client == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", cfg.Name, err)
		}

		provs[cfg.Name] = Provider{
			Name: cfg.Name,
			OAuth: oauth2.Config{
				ClientID:     cfg.Client,
				ClientSecret: cfg.Secret,
				RedirectURL:  cfg.RedirectURL,
				Endpoint:     p.Endpoint(),
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			Verifier: p.Verifier(&oidc.Config{ClientID: cfg.Client}),
		}
	}
	return provs, nil
}

// HandleOauthLogin redirects to the provider. The OAuth state is the token
// of a short lived pending session that remembers the provider and nonce.
func HandleOauthLogin(sm *scs.SessionManager, provs map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		p, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q is not configured", name))
		}

		nonce, err := random.StringSecure(32)
		if err != nil {
			return fmt.Errorf("generating nonce: %w", err)
		}

		// scs keeps one session per context; the request one is already
		// loaded, so the pending session gets a context of its own.
		pending, err := sm.Load(context.Background(), "")
		if err != nil {
			return fmt.Errorf("creating pending session: %w", err)
		}
		sm.Put(pending, sessionOauthProvider, p.Name)
		sm.Put(pending, sessionOauthNonce, nonce)

		state, _, err := sm.Commit(pending)
		if err != nil {
			return fmt.Errorf("committing pending session: %w", err)
		}

		http.Redirect(w, r, p.OAuth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
		return nil
	}
}

type idClaims struct {
	Email    string `json:"email"`
	Verified bool   `json:"email_verified"`
	Name     string `json:"name"`
}

// HandleOauthCallback completes the login, creating the account on first
// use, and sends the browser back to the app with the session token.
func HandleOauthCallback(db *sqlx.DB, sm *scs.SessionManager, provs map[string]Provider, redirectURL string, adminEmail string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		p, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q is not configured", name))
		}

		q := r.URL.Query()
		pending, err := sm.Load(context.Background(), q.Get("state"))
		if err != nil {
			return fmt.Errorf("loading pending session: %w", err)
		}
		provider := sm.PopString(pending, sessionOauthProvider)
		nonce := sm.PopString(pending, sessionOauthNonce)
		if err := sm.Destroy(pending); err != nil {
			return fmt.Errorf("destroying pending session: %w", err)
		}

		if provider != p.Name || nonce == "" {
			return weberr.NotAuthorized(errors.New("oauth state does not match any pending login"))
		}

		tok, err := p.OAuth.Exchange(ctx, q.Get("code"))
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("exchanging oauth code: %w", err))
		}

		raw, ok := tok.Extra("id_token").(string)
		if !ok {
			return weberr.NotAuthorized(errors.New("no id_token in token response"))
		}

		idt, err := p.Verifier.Verify(ctx, raw)
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("verifying id token: %w", err))
		}
		if idt.Nonce != nonce {
			return weberr.NotAuthorized(errors.New("id token nonce mismatch"))
		}

		var c idClaims
		if err := idt.Claims(&c); err != nil {
			return fmt.Errorf("decoding id token claims: %w", err)
		}
		if c.Email == "" || !c.Verified {
			return weberr.NotAuthorized(errors.New("provider did not return a verified email"))
		}

		u, err := upsertOauthUser(ctx, db, c, adminEmail)
		if err != nil {
			return err
		}

		sess, err := sm.Load(context.Background(), "")
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		token, err := startSession(sess, sm, u)
		if err != nil {
			return err
		}

		dest, err := url.Parse(redirectURL)
		if err != nil {
			return fmt.Errorf("parsing login redirect url: %w", err)
		}
		dq := dest.Query()
		dq.Set("token", token)
		dest.RawQuery = dq.Encode()

		http.Redirect(w, r, dest.String(), http.StatusFound)
		return nil
	}
}

func upsertOauthUser(ctx context.Context, db *sqlx.DB, c idClaims, adminEmail string) (user.User, error) {
	u, err := user.FetchByEmail(ctx, db, c.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, database.ErrDBNotFound) {
		return user.User{}, fmt.Errorf("fetching oauth user: %w", err)
	}

	name := c.Name
	if name == "" {
		name = c.Email
	}

	now := time.Now().UTC()
	u = user.User{
		ID:        validate.GenerateID(),
		Name:      name,
		Email:     user.NormalizeEmail(c.Email),
		Role:      roleFor(c.Email, adminEmail),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Create(ctx, db, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.FetchByEmail(ctx, db, c.Email)
		}
		return user.User{}, fmt.Errorf("creating oauth user: %w", err)
	}
	return u, nil
}
