package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/crewbell/internal/auth"
)

func newJWT(t *testing.T) *iauth.JWTService {
	t.Helper()
	svc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{CrewID: 17})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc), func(c *gin.Context) {
		id, ok := CrewID(c)
		c.JSON(http.StatusOK, gin.H{"crew_id": id, "ok": ok, "role": c.GetString(CtxRoleKey)})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.EqualValues(t, 17, payload["crew_id"])
	require.Equal(t, true, payload["ok"])
	require.Equal(t, iauth.RoleCrew, payload["role"])
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newJWT(t)

	crewToken, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{CrewID: 1})
	require.NoError(t, err)
	adminToken, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{CrewID: 2, Role: iauth.RoleAdmin})
	require.NoError(t, err)

	r := gin.New()
	r.POST("/manage", Auth(jwtSvc), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for token, want := range map[string]int{crewToken: http.StatusForbidden, adminToken: http.StatusNoContent} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/manage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		require.Equal(t, want, w.Code)
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", token)

	_, ok = BearerToken("Basic abc")
	require.False(t, ok)

	_, ok = BearerToken("Bearer    ")
	require.False(t, ok)
}
