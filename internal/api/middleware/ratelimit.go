package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/inventomatic/internal/api/response"
	"github.com/kiranshivaraju/inventomatic/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	window                   = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	counter        cache.Counter
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Counter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{counter: c, requestsPerMin: requestsPerMin}
}

// Limit rate-limits per authenticated principal. It must run after Authenticate.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok {
			// Authenticate didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}
		rl.apply(w, r, next, cache.PrincipalRateLimitKey(p.ID))
	})
}

// LimitLogin rate-limits unauthenticated login attempts per client address.
func (rl *RateLimit) LimitLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.apply(w, r, next, cache.LoginRateLimitKey(clientAddr(r)))
	})
}

func (rl *RateLimit) apply(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	count, err := rl.counter.IncrWithExpiry(r.Context(), key, window)
	if err != nil {
		// On Redis error, allow the request (fail open)
		slog.Warn("rate limit unavailable", "error", err)
		next.ServeHTTP(w, r)
		return
	}

	remaining := rl.requestsPerMin - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetTime := time.Now().Add(window).Unix()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

	if count > int64(rl.requestsPerMin) {
		w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
		response.Error(w, http.StatusTooManyRequests,
			"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
		return
	}

	next.ServeHTTP(w, r)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
