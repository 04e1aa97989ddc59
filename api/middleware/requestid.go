package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/irsalhamdi/course-shop/api/web"
)

const (
	RequestIDHeader = "X-Request-Id"

	// DefaultRequestIDLengthLimit caps ids supplied by callers.
	DefaultRequestIDLengthLimit = 128
)

type reqIDKeyCtx int

const reqIDKey reqIDKeyCtx = 1

// RequestID tags the request with the id sent by the caller, or a fresh
// uuid when the caller sent none or one that cannot be echoed safely. The id
// is returned in the response headers.
func RequestID() web.Middleware {
	lengthLimit := DefaultRequestIDLengthLimit
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || strings.ContainsFunc(id, notPrintable) {
				id = uuid.NewString()
			} else if len(id) > lengthLimit {
				id = id[:lengthLimit]
			}
			ctx = context.WithValue(ctx, reqIDKey, id)
			w.Header().Set(RequestIDHeader, id)

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func ContextRequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}

func notPrintable(r rune) bool {
	return r < 0x20 || r > 0x7e
}
