package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max is the number of requests a client may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// window is one client's request count in the fixed window starting at
// start, plus the count of the window before it.
type window struct {
	start     time.Time
	count     float64
	prevCount float64
}

// limiter keeps client windows in a go-cache. A window nobody touched for
// two window lengths expires on its own.
type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows *gocache.Cache
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		cfg:     cfg,
		windows: gocache.New(2*cfg.Window, cfg.Window),
	}
}

// take counts one request for key at now. The previous window's count is
// weighted by how much of it the sliding window still covers.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := &window{start: now.Truncate(l.cfg.Window)}
	if v, found := l.windows.Get(key); found {
		w = v.(*window)
	}
	if since := now.Sub(w.start); since >= l.cfg.Window {
		prev := w.count
		if since >= 2*l.cfg.Window {
			prev = 0
		}
		w = &window{start: now.Truncate(l.cfg.Window), prevCount: prev}
	}
	l.windows.SetDefault(key, w)

	weight := max(0, 1-now.Sub(w.start).Seconds()/l.cfg.Window.Seconds())
	used := w.prevCount*weight + w.count
	reset = w.start.Add(l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.count++
	return max(0, l.cfg.Max-int(math.Ceil(used+1))), reset, true
}

// RateLimit allows each client cfg.Max requests per sliding cfg.Window and
// answers the rest with 429 and Retry-After. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, reset, ok := l.take(l.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(0, reset.Sub(now))
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the first X-Forwarded-For hop, else X-Real-IP, else the
// connection's remote host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
