package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
)

type UserGate interface {
	AuthorizeUser(ctx context.Context, principalID string, action authz.Action) (authz.Caller, error)
}

// Authorize checks action for the authenticated principal and stores the
// resolved caller for handlers. It must run after Auth.
func Authorize(gate UserGate, action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID := PrincipalID(c)
		if principalID == "" {
			AbortWithError(c, apperr.Unauthenticated("Invalid authentication"))
			return
		}

		caller, err := gate.AuthorizeUser(c.Request.Context(), principalID, action)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ContextCaller, caller)
		c.Next()
	}
}

func CallerFrom(c *gin.Context) (authz.Caller, bool) {
	v, ok := c.Get(ContextCaller)
	if !ok {
		return authz.Caller{}, false
	}
	caller, ok := v.(authz.Caller)
	return caller, ok
}
