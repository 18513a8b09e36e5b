package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	gohttp "github.com/km-arc/go-foundation/framework/http"
)

// sweepInterval is how often idle buckets are looked for.
const sweepInterval = time.Minute

// Throttle limits requests per client with token buckets. Each distinct
// limit has its own set of buckets. A bucket unused for a whole window is
// full again, so it is dropped on the next sweep.
type Throttle struct {
	mu        sync.Mutex
	limiters  map[string]*bucket
	lastSweep time.Time

	// Key identifies the client; the remote IP by default.
	Key func(r *http.Request) string

	// Now is the clock used to expire idle buckets; time.Now by default.
	Now func() time.Time
}

type bucket struct {
	lim    *rate.Limiter
	window time.Duration
	seen   time.Time
}

// NewThrottle creates an empty Throttle.
func NewThrottle() *Throttle {
	return &Throttle{limiters: make(map[string]*bucket)}
}

// Len returns the number of buckets held.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

// Limit allows limit requests per window for every client. Requests over the
// limit get 429 with a Retry-After header.
func (t *Throttle) Limit(limit int, per time.Duration) func(http.Handler) http.Handler {
	every := rate.Every(per / time.Duration(limit))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := t.limiter(fmt.Sprintf("%d/%s|%s", limit, per, t.key(r)), every, limit, per)

			res := lim.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				tooManyAttempts(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, int(lim.Tokens()))))
			next.ServeHTTP(w, r)
		})
	}
}

// Factory returns a route middleware factory for "throttle:max,minutes".
// Minutes defaults to 1.
//
//	router.AliasMiddleware("throttle", throttle.Factory())
//	router.Post("/login", login).Middleware("throttle:5,1")
func (t *Throttle) Factory() func(params ...string) (func(http.Handler) http.Handler, error) {
	return func(params ...string) (func(http.Handler) http.Handler, error) {
		if len(params) == 0 {
			return nil, fmt.Errorf("throttle: missing max attempts")
		}
		maxAttempts, err := strconv.Atoi(params[0])
		if err != nil || maxAttempts <= 0 {
			return nil, fmt.Errorf("throttle: invalid max attempts %q", params[0])
		}
		minutes := 1
		if len(params) > 1 {
			if minutes, err = strconv.Atoi(params[1]); err != nil || minutes <= 0 {
				return nil, fmt.Errorf("throttle: invalid decay minutes %q", params[1])
			}
		}
		return t.Limit(maxAttempts, time.Duration(minutes)*time.Minute), nil
	}
}

func (t *Throttle) limiter(key string, every rate.Limit, burst int, window time.Duration) *rate.Limiter {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastSweep) >= sweepInterval {
		t.sweep(now)
	}
	b, ok := t.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(every, burst), window: window}
		t.limiters[key] = b
	}
	b.seen = now
	return b.lim
}

// sweep drops buckets idle for at least their window. Callers hold t.mu.
func (t *Throttle) sweep(now time.Time) {
	for key, b := range t.limiters {
		if now.Sub(b.seen) >= b.window {
			delete(t.limiters, key)
		}
	}
	t.lastSweep = now
}

func (t *Throttle) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Throttle) key(r *http.Request) string {
	if t.Key != nil {
		return t.Key(r)
	}
	return gohttp.NewRequest(r).IP()
}

func tooManyAttempts(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	if gohttp.NewRequest(r).WantsJSON() {
		res.Error(http.StatusTooManyRequests, "Too Many Attempts.")
		return
	}
	res.Text(http.StatusTooManyRequests, "Too Many Attempts.")
}
