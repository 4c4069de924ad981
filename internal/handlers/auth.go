package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
	"safetywatch/internal/middleware"
	"safetywatch/internal/models"
	"safetywatch/internal/service"
)

type loginRequest struct {
	UserID   string `json:"user_id"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Login string      `json:"login"`
	Role  models.Role `json:"role"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperr.Validation("Invalid request body", nil))
		return
	}

	login := req.Login
	if login == "" {
		login = req.UserID
	}
	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Login:     login,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		User: userResponse{
			ID:    result.Principal.ID,
			Login: result.Principal.Login,
			Role:  result.Role,
		},
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.SessionID(c)); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h HandlerSet) Me(c *gin.Context) {
	profile, err := h.auth.Me(c.Request.Context(), middleware.PrincipalID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{
		ID:    profile.Principal.ID,
		Login: profile.Principal.Login,
		Role:  profile.Role,
	})
}
