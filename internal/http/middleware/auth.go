// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the identity middleware. The service trusts a plain
// X-User-ID header (there is no token layer; the deployment sits behind a
// gateway that authenticates upstream), so "auth" here means two things:
//
//   - Identity() copies the header into the Gin context under "userID" so the
//     access logger, the rate limiter, and the handlers all see one value.
//   - AdminOnly() gates administrative routes on the single configured
//     administrator identity.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key under which the caller identity is stored.
const userIDKey = "userID"

// Identity propagates the X-User-ID header into the Gin context.
//
// It never rejects: routes that require an identity enforce that themselves,
// and public routes (e.g. /health) must stay reachable without one. Place it
// before Logger() and the rate limiter so both key on the user rather than
// the client IP when an identity is present.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader("X-User-ID")); uid != "" {
			c.Set(userIDKey, uid)
		}
		c.Next()
	}
}

// AdminOnly rejects any request whose identity does not match adminID.
//
// The response reuses the standard error envelope shape:
//
//	HTTP/1.1 403 Forbidden
//	{
//	  "request_id": "<uuid>",
//	  "code":       "unauthorized",
//	  "message":    "admin access required"
//	}
//
// An empty adminID locks the admin surface entirely; that is a configuration
// error caught by config validation, not something this middleware works
// around.
func AdminOnly(adminID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := ""
		if v, ok := c.Get(userIDKey); ok {
			uid, _ = v.(string)
		}
		if uid == "" {
			uid = strings.TrimSpace(c.GetHeader("X-User-ID"))
		}
		if adminID == "" || uid != adminID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "unauthorized",
				"message":    "admin access required",
			})
			return
		}
		c.Next()
	}
}
