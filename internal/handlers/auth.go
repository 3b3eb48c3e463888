package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kbediako/sikaflow/internal/config"
)

// gatewayAuth authenticates the telco gateway before any session is touched.
// A shared-secret header and an optional source-IP allow-list; both pure
// gates in front of the state machine.
func gatewayAuth(cfg config.GatewayConfig) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.AllowedIPs))
	for _, ip := range cfg.AllowedIPs {
		allowed[ip] = true
	}

	return func(c *gin.Context) {
		if cfg.SharedSecret != "" {
			got := c.GetHeader("X-Gateway-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.SharedSecret)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}
		if len(allowed) > 0 && !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// adminAuth guards the approve/reject and status routes with a bearer token.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin_disabled"})
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
