package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
)

const internalErrorMessage = "internal server error"

// AbortWithError writes err as a JSON error body and stops the chain.
// Errors outside the apperr taxonomy become an opaque 500; the cause is
// attached to the context for the request logger either way.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": internalErrorMessage})
		return
	}

	body := gin.H{"error": appErr.Message}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), body)
}
