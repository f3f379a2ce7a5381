package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/netcore-rdp/rdportal/internal/domain/ratelimit"
)

// RateLimitMiddleware throttles the wrapped route per caller: by API key
// name when the request carries a valid key, else by client IP. A limiter
// failure lets the request through. Denied requests get 429 with a
// Retry-After header in whole seconds.
func RateLimitMiddleware(limiter ratelimit.Limiter, limit ratelimit.Limit, metrics *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			res, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				LoggerFromContext(r.Context()).Warn("rate limiter failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				if metrics != nil {
					metrics.RateLimitedTotal.WithLabelValues(route).Inc()
				}
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
				LoggerFromContext(r.Context()).Info("request rate limited", "route", route, "retry_after", res.RetryAfter)
				respondError(w, r, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if id := IdentityFromContext(r.Context()); id != nil {
		return ratelimit.Key(ratelimit.ScopeOwner, id.Name)
	}
	ip := ClientIPFromContext(r.Context())
	if ip == "" {
		ip = extractRealIP(r)
	}
	return ratelimit.Key(ratelimit.ScopeClient, ip)
}
