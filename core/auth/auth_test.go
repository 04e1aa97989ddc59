package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/core/claims"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var userColumns = []string{"user_id", "name", "email", "password_hash", "role", "created_at", "updated_at"}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func status(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	_, code, ok := weberr.Response(err)
	require.True(t, ok, "error carries no response: %v", err)
	return code
}

// serve runs h behind the session middleware, the way the router does.
func serve(sm *scs.SessionManager, h web.Handler, r *http.Request, mw ...web.Middleware) (*httptest.ResponseRecorder, error) {
	w := httptest.NewRecorder()
	mw = append([]web.Middleware{LoadSession(sm)}, mw...)
	err := web.WrapMiddleware(mw, h)(r.Context(), w, r)
	return w, err
}

func sessionFor(t *testing.T, sm *scs.SessionManager, id, role string) string {
	t.Helper()
	ctx, err := sm.Load(context.Background(), "")
	require.NoError(t, err)
	sm.Put(ctx, sessionUserID, id)
	sm.Put(ctx, sessionRole, role)
	token, _, err := sm.Commit(ctx)
	require.NoError(t, err)
	return token
}

func whoami(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := claims.Get(ctx)
	if err != nil {
		return err
	}
	return web.Respond(ctx, w, c, http.StatusOK)
}

func TestCapabilities(t *testing.T) {
	sm := scs.New()
	userTok := sessionFor(t, sm, "u1", claims.RoleUser)
	adminTok := sessionFor(t, sm, "a1", claims.RoleAdmin)

	tests := []struct {
		name   string
		token  string
		mw     web.Middleware
		status int
	}{
		{"anonymous on authenticated route", "", Authenticate(sm), http.StatusUnauthorized},
		{"unknown token", "bogus", Authenticate(sm), http.StatusUnauthorized},
		{"user on authenticated route", userTok, Authenticate(sm), http.StatusOK},
		{"anonymous on admin route", "", Admin(sm), http.StatusUnauthorized},
		{"user on admin route", userTok, Admin(sm), http.StatusUnauthorized},
		{"admin on admin route", adminTok, Admin(sm), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/courses", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}

			w, err := serve(sm, whoami, r, tt.mw)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, w.Code)
				return
			}
			assert.Equal(t, tt.status, status(t, err))
		})
	}
}

func TestLegacyTokenHeader(t *testing.T) {
	sm := scs.New()
	tok := sessionFor(t, sm, "u1", claims.RoleUser)

	r := httptest.NewRequest(http.MethodGet, "/orders", nil)
	r.Header.Set("x-auth-token", tok)

	w, err := serve(sm, whoami, r, Authenticate(sm))
	require.NoError(t, err)

	var c claims.Claims
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "u1", c.UserID)
}

func TestRegisterAndUseToken(t *testing.T) {
	db, mock := newMock(t)
	sm := scs.New()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "Root", "root@example.com", sqlmock.AnyArg(), claims.RoleAdmin, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"name":"Root","email":"Root@example.com","password":"secret1"}`
	r := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w, err := serve(sm, HandleRegister(db, sm, "root@example.com"), r)
	require.NoError(t, err)

	var tr TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	require.NotEmpty(t, tr.Token)

	r = httptest.NewRequest(http.MethodPost, "/courses", nil)
	r.Header.Set("Authorization", "Bearer "+tr.Token)
	_, err = serve(sm, whoami, r, Admin(sm))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicate(t *testing.T) {
	db, mock := newMock(t)
	sm := scs.New()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	body := `{"name":"Ann","email":"ann@example.com","password":"secret1"}`
	r := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	_, err := serve(sm, HandleRegister(db, sm, ""), r)
	assert.Equal(t, http.StatusBadRequest, status(t, err))
}

func TestRegisterCannotChooseRole(t *testing.T) {
	db, _ := newMock(t)
	sm := scs.New()

	body := `{"name":"Ann","email":"ann@example.com","password":"secret1","role":"admin"}`
	r := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	_, err := serve(sm, HandleRegister(db, sm, ""), r)
	assert.Equal(t, http.StatusBadRequest, status(t, err))
}

func TestLogin(t *testing.T) {
	db, mock := newMock(t)
	sm := scs.New()
	now := time.Now()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ann@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "Ann", "ann@example.com", hash, claims.RoleUser, now, now))
	}
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("bob@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	login := func(email, pass string) (*httptest.ResponseRecorder, error) {
		body := `{"email":"` + email + `","password":"` + pass + `"}`
		r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		return serve(sm, HandleLogin(db, sm, nil), r)
	}

	w, err := login("ann@example.com", "secret1")
	require.NoError(t, err)
	var tr TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tr))
	assert.NotEmpty(t, tr.Token)

	_, err = login("ann@example.com", "wrong-pass")
	assert.Equal(t, http.StatusUnauthorized, status(t, err))

	_, err = login("bob@example.com", "secret1")
	assert.Equal(t, http.StatusUnauthorized, status(t, err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogout(t *testing.T) {
	sm := scs.New()
	tok := sessionFor(t, sm, "u1", claims.RoleUser)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w, err := serve(sm, HandleLogout(sm), r, Authenticate(sm))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/orders", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	_, err = serve(sm, whoami, r, Authenticate(sm))
	assert.Equal(t, http.StatusUnauthorized, status(t, err))
}

func TestOauthLoginRedirect(t *testing.T) {
	sm := scs.New()
	provs := map[string]Provider{
		"google": {
			Name: "google",
			OAuth: oauth2.Config{
				ClientID: "client",
				Endpoint: oauth2.Endpoint{AuthURL: "https://idp.example.com/auth"},
			},
		},
	}

	r := httptest.NewRequest(http.MethodGet, "/auth/oauth-login/google", nil)
	r = mux.SetURLVars(r, map[string]string{"provider": "google"})
	w, err := serve(sm, HandleOauthLogin(sm, provs), r)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", loc.Host)

	state := loc.Query().Get("state")
	nonce := loc.Query().Get("nonce")
	require.NotEmpty(t, state)
	require.Len(t, nonce, 32)

	pending, err := sm.Load(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "google", sm.GetString(pending, sessionOauthProvider))
	assert.Equal(t, nonce, sm.GetString(pending, sessionOauthNonce))

	r = httptest.NewRequest(http.MethodGet, "/auth/oauth-login/github", nil)
	r = mux.SetURLVars(r, map[string]string{"provider": "github"})
	_, err = serve(sm, HandleOauthLogin(sm, provs), r)
	assert.Equal(t, http.StatusNotFound, status(t, err))
}

func TestOauthCallbackRejectsUnknownState(t *testing.T) {
	db, _ := newMock(t)
	sm := scs.New()
	provs := map[string]Provider{"google": {Name: "google"}}

	r := httptest.NewRequest(http.MethodGet, "/auth/oauth-callback/google?state=forged&code=x", nil)
	r = mux.SetURLVars(r, map[string]string{"provider": "google"})
	_, err := serve(sm, HandleOauthCallback(db, sm, provs, "http://app/login", ""), r)
	assert.Equal(t, http.StatusUnauthorized, status(t, err))
}
