package middleware

import "github.com/gin-gonic/gin"

// DefaultContentSecurityPolicy restricts resources, including alert sounds, to same origin.
const DefaultContentSecurityPolicy = "default-src 'self'; media-src 'self'; connect-src 'self' ws: wss:"

// SecurityHeaders applies common hardening headers. HSTS is only sent when the
// deployment terminates TLS itself.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", DefaultContentSecurityPolicy)
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
