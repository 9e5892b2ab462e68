package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/rate"
)

// RateLimit rejects clients exceeding the limiter's budget. It guards the
// endpoints where brute force pays off: coupon validation and activation
// code redemption.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			if !lim.Check(web.ClientIP(r)) {
				err := errors.New("rate limit exceeded")
				return weberr.NewError(err, "too many requests", http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
