package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Sliding window; used as coarse burst
// protection on the mutating route group.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// FixedWindow is a per-IP fixed-window counter. Unlike the sliding window
// above, its behavior is fully deterministic: exactly limit requests are
// admitted per window, and the reset moment is the window start plus the
// window length, which lets clients schedule retries off X-RateLimit-Reset.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	length time.Duration
	now    func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewFixedWindow creates a limiter admitting limit requests per length per
// client IP.
func NewFixedWindow(limit int, length time.Duration) *FixedWindow {
	return &FixedWindow{
		windows: make(map[string]*window),
		limit:   limit,
		length:  length,
		now:     time.Now,
	}
}

// check runs one admission decision for the client. Every check first
// purges all elapsed windows, so the map is bounded by the number of
// distinct clients seen in one window length. It returns whether the
// request is admitted, how many requests remain in the window, and when
// the window resets.
func (f *FixedWindow) check(clientIP string) (ok bool, remaining int, reset time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for ip, w := range f.windows {
		if now.Sub(w.start) >= f.length {
			delete(f.windows, ip)
		}
	}

	w := f.windows[clientIP]
	if w == nil {
		w = &window{start: now}
		f.windows[clientIP] = w
	}
	reset = w.start.Add(f.length)

	if w.count >= f.limit {
		return false, 0, reset
	}
	w.count++
	return true, f.limit - w.count, reset
}

// Handler wraps next with the limiter. The three X-RateLimit headers are
// set on every response that passes through, denied or not; denials get a
// 429 with Retry-After and a JSON body.
func (f *FixedWindow) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, reset := f.check(ClientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(f.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			retryAfter := int(reset.Sub(f.now())/time.Second) + 1
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"Too many requests. Please try again later.","retryAfter":` + strconv.Itoa(retryAfter) + `}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP identifies the caller for rate limiting: the first
// X-Forwarded-For hop, then X-Real-IP. Requests with neither share one
// "unknown" bucket, which throttles them collectively rather than letting
// header-less traffic bypass the limiter.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}
