package server

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimit returns middleware that throttles state-changing requests
// (anything but GET, HEAD and OPTIONS) with a shared token bucket. Reads
// are never limited. A non-positive limit disables throttling.
func RateLimit(limit float64, burst int, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(limit), burst)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow() {
				logger.Warn("request rate limited",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
				)
				w.Header().Set("Retry-After", "1")
				RateLimited(w, "too many state-changing requests, retry shortly", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
