package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/middleware"
	"safetywatch/internal/service"
)

type seedCredentials struct {
	Supervisors []service.Credential `json:"supervisors"`
	Workers     []service.Credential `json:"workers"`
}

type seedResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Credentials seedCredentials `json:"credentials"`
	Details     []string        `json:"details"`
}

func (h HandlerSet) SeedDemoData(c *gin.Context) {
	result, err := h.seeding.Seed(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	// Plaintext passwords must never be cached by intermediaries.
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, seedResponse{
		Success: true,
		Message: "Demo data seeded successfully!",
		Credentials: seedCredentials{
			Supervisors: result.Supervisors,
			Workers:     result.Workers,
		},
		Details: result.Details,
	})
}
