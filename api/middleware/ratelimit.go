package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/irsalhamdi/course-shop/api/web"
	"github.com/irsalhamdi/course-shop/api/weberr"
	"github.com/irsalhamdi/course-shop/rate"
)

// KeyFunc picks the bucket a request is charged against.
type KeyFunc func(ctx context.Context, r *http.Request) string

// RemoteIP buckets requests by client address.
func RemoteIP(ctx context.Context, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func RateLimit(lim *rate.Limiter, key KeyFunc) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			k := key(ctx, r)
			if k != "" && !lim.Check(k) {
				return weberr.TooManyRequests(
					fmt.Errorf("rate limit exceeded for %q", k),
					weberr.WithFields(map[string]interface{}{"rate_key": k}),
				)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
