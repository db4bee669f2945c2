package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := &stepClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}

	r := gin.New()
	r.Use(RateLimit(NewRateLimiter(2, time.Minute, clock.Now)))
	r.POST("/service-requests", func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/service-requests", nil))
		return w
	}

	require.Equal(t, http.StatusCreated, send().Code)
	w := send()
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusTooManyRequests, send().Code)

	clock.Advance(61 * time.Second)
	require.Equal(t, http.StatusCreated, send().Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Minute, nil)
	for i := 0; i < 10; i++ {
		allowed, _, _ := limiter.Allow("k")
		require.True(t, allowed)
	}
}
