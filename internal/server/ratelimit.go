package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 5 * time.Minute

type actorLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// writeLimiter hands out one token bucket per player for state-changing calls.
type writeLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*actorLimiter
	now      func() time.Time
}

func newWriteLimiter(perMinute int) *writeLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &writeLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		limiters: map[string]*actorLimiter{},
		now:      time.Now,
	}
}

func (l *writeLimiter) allow(actorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, al := range l.limiters {
		if now.After(al.expires) {
			delete(l.limiters, key)
		}
	}
	al, ok := l.limiters[actorID]
	if !ok {
		al = &actorLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[actorID] = al
	}
	al.expires = now.Add(limiterIdle)
	return al.limiter.AllowN(now, 1)
}

// newRateLimitMiddleware throttles POSTs under basePath per resolved player.
// It must run after the auth middleware. A nil limiter disables it.
func newRateLimitMiddleware(basePath string, l *writeLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPost || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			p, ok := principalFromContext(req.Context())
			if !ok {
				next.ServeHTTP(w, req)
				return
			}
			if !l.allow(p.ActorID) {
				respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests, slow down", nil))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
