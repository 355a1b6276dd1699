package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

const rateLimitWindow = time.Minute

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusTooManyRequests, "Too many requests")
}

// RateLimitAPI ограничивает запросы по IP. perMinute <= 0 — без ограничения.
func RateLimitAPI(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// RateLimitUser ограничивает запросы по user_id; ставится после BearerAuth.
func RateLimitUser(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, rateLimitWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if id := GetUserID(r.Context()); id != "" {
				return "u:" + id, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}
