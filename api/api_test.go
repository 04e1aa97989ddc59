package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/course-shop/core/checkout"
	"github.com/irsalhamdi/course-shop/core/claims"
	"github.com/irsalhamdi/course-shop/rate"
	"github.com/irsalhamdi/course-shop/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h    http.Handler
	mock sqlmock.Sqlmock
	sm   *scs.SessionManager
}

func newFixture(t *testing.T, checkoutLimit *rate.Limiter) *fixture {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log, _ := test.NewNullLogger()
	sm := scs.New()

	h := APIMux(APIConfig{
		Log:             log,
		DB:              sqlx.NewDb(mockDB, "postgres"),
		Session:         sm,
		Checkout:        &checkout.Service{},
		CheckoutLimiter: checkoutLimit,
	})
	return &fixture{h: h, mock: mock, sm: sm}
}

func (f *fixture) token(t *testing.T, role string) string {
	t.Helper()
	ctx, err := f.sm.Load(context.Background(), "")
	require.NoError(t, err)
	f.sm.Put(ctx, "user_id", validate.GenerateID())
	f.sm.Put(ctx, "role", role)
	tok, _, err := f.sm.Commit(ctx)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func TestCourseWritesRequireAdmin(t *testing.T) {
	f := newFixture(t, nil)
	userTok := f.token(t, claims.RoleUser)
	id := validate.GenerateID()

	valid := `{"title":"Go","description":"Learn Go","price":10}`
	requests := []struct{ method, path, body string }{
		{http.MethodPost, "/courses", valid},
		{http.MethodPost, "/courses", `{"broken"`},
		{http.MethodPut, "/courses/" + id, `{"price":1}`},
		{http.MethodDelete, "/courses/" + id, ""},
	}

	for _, rq := range requests {
		for _, tok := range []string{"", userTok} {
			w := f.do(rq.method, rq.path, tok, rq.body)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s token=%q", rq.method, rq.path, tok)
		}
	}

	w := f.do(http.MethodPost, "/courses", userTok, valid)
	assert.JSONEq(t, `{"msg":"User not authorized"}`, w.Body.String())

	// Nothing reached the database.
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCheckoutRequiresLogin(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/checkout", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutRateLimitedPerUser(t *testing.T) {
	lim := rate.NewLimiter(1, time.Minute, rate.Every(time.Hour))
	t.Cleanup(lim.Stop)
	f := newFixture(t, lim)

	ann := f.token(t, claims.RoleUser)
	bob := f.token(t, claims.RoleUser)

	// An incomplete payload is rejected before any charge, but still uses
	// up the user's budget.
	w := f.do(http.MethodPost, "/checkout", ann, `{"courseIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/checkout", ann, `{"courseIds":[]}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = f.do(http.MethodPost, "/checkout", bob, `{"courseIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("SELECT true").WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

	w := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/orders", "", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
