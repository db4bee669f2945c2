package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/crewbell/pkg/logger"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zap.DebugLevel)
	logger.Replace(zap.New(core))
	t.Cleanup(func() { logger.Replace(nil) })

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) {
		c.Set(CtxCrewIDKey, int64(9))
		c.String(http.StatusOK, "pong")
	})
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))

	entries := recorded.FilterMessage("request").All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.EqualValues(t, 9, entries[0].ContextMap()["crew_id"])
	require.Equal(t, "http", entries[0].ContextMap()["module"])
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}
