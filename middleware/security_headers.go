package middleware

import (
	"github.com/NomadCrew/nomad-weather/config"
	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware adds security-related HTTP headers to all responses.
func SecurityHeadersMiddleware(cfg *config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// No framing of the view or state responses.
		c.Header("X-Frame-Options", "DENY")

		// Browsers must respect the declared Content-Type.
		c.Header("X-Content-Type-Options", "nosniff")

		// Legacy XSS filter for older browsers.
		c.Header("X-XSS-Protection", "1; mode=block")

		// Full URL same-origin, origin only cross-origin.
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS only in production; local development stays on plain HTTP.
		if cfg.Environment == config.EnvProduction {
			// One year, subdomains included.
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
