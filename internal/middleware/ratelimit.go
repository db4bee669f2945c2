package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/response"
)

// RateLimiter counts requests per key in fixed windows. It is process-local.
type RateLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*rateCounter
	sweepAt  time.Time
}

type rateCounter struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter allows max requests per key within each window.
func NewRateLimiter(max int, window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		max:      max,
		window:   window,
		now:      now,
		counters: make(map[string]*rateCounter),
	}
}

// Allow counts a request for key and reports whether it is within the limit,
// the remaining budget and the time until the window resets.
func (l *RateLimiter) Allow(key string) (bool, int, time.Duration) {
	if l.max <= 0 || l.window <= 0 {
		return true, l.max, 0
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, ct := range l.counters {
			if now.After(ct.windowEnd) {
				delete(l.counters, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	ct, ok := l.counters[key]
	if !ok || now.After(ct.windowEnd) {
		ct = &rateCounter{windowEnd: now.Add(l.window)}
		l.counters[key] = ct
	}
	ct.count++

	remaining := l.max - ct.count
	if remaining < 0 {
		remaining = 0
	}
	return ct.count <= l.max, remaining, ct.windowEnd.Sub(now)
}

// RateLimit throttles requests per (client IP, route). Cabin buttons that retry in
// a loop would otherwise flood the crew with duplicate service requests.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining, resetIn := limiter.Allow(c.ClientIP() + "|" + c.FullPath())

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if !allowed {
			response.Error(c, errors.ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
