package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// windowLimiter counts requests per client in fixed windows. Expired
// windows are swept lazily so idle clients do not accumulate.
type windowLimiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	sweepAt time.Time
}

type window struct {
	count int
	ends  time.Time
}

func newWindowLimiter(limit int, per time.Duration, now func() time.Time) *windowLimiter {
	return &windowLimiter{
		limit:   limit,
		per:     per,
		now:     now,
		windows: make(map[string]*window),
	}
}

// allow records one request for key. When the window is exhausted it
// reports how long until it resets.
func (l *windowLimiter) allow(key string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, w := range l.windows {
			if !now.Before(w.ends) {
				delete(l.windows, k)
			}
		}
		l.sweepAt = now.Add(l.per)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.ends) {
		w = &window{ends: now.Add(l.per)}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, w.ends.Sub(now)
	}
	w.count++
	return true, 0
}

func (l *windowLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// RateLimit allows limit requests per client in each window of length per.
// Clients are keyed by RemoteAddr, so chi's RealIP must run first when the
// frame sits behind a proxy. A non-positive limit disables the check.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newWindowLimiter(limit, per, time.Now)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(clientKey(r))
			if !ok {
				secs := int(wait/time.Second) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": "rate_limited", "message": "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
