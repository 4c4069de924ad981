package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
	"safetywatch/internal/service"
)

const (
	ContextPrincipalID = "principal_id"
	ContextSessionID   = "session_id"
	ContextCaller      = "caller"

	accessTokenQuery = "access_token"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token, ip, userAgent string) (service.Identity, error)
}

// Auth requires a bearer token in the Authorization header.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return auth(verifier, false)
}

// StreamAuth also accepts the token as an access_token query parameter,
// since browsers cannot set headers on websocket upgrades.
func StreamAuth(verifier TokenVerifier) gin.HandlerFunc {
	return auth(verifier, true)
}

func auth(verifier TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c.GetHeader("Authorization"))
		if !present && allowQuery {
			token = c.Query(accessTokenQuery)
			present = token != ""
		}
		if !present {
			AbortWithError(c, apperr.Unauthenticated("Missing authorization header"))
			return
		}
		if token == "" {
			AbortWithError(c, apperr.Unauthenticated("Invalid authentication"))
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token, c.ClientIP(), c.GetHeader("User-Agent"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ContextPrincipalID, id.PrincipalID)
		c.Set(ContextSessionID, id.SessionID)
		c.Next()
	}
}

// bearerToken reports whether a header was sent at all and, if it carries
// the Bearer scheme, the token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func PrincipalID(c *gin.Context) string {
	return c.GetString(ContextPrincipalID)
}

func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}
