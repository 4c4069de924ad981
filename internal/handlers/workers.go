package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
	"safetywatch/internal/middleware"
	"safetywatch/internal/models"
	"safetywatch/internal/service"
)

type registerWorkerRequest struct {
	WorkerID     string  `json:"worker_id"`
	Name         string  `json:"name"`
	Age          int     `json:"age"`
	HealthIssues string  `json:"health_issues"`
	SupervisorID *string `json:"supervisor_id"`
	DeviceID     *string `json:"device_id"`
	Password     string  `json:"password"`
}

func (h HandlerSet) RegisterWorker(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req registerWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, apperr.Validation("Invalid request body", nil))
		return
	}

	result, err := h.provisioning.Register(c.Request.Context(), caller, service.RegisterInput{
		WorkerID:     req.WorkerID,
		Name:         req.Name,
		Age:          req.Age,
		HealthIssues: req.HealthIssues,
		SupervisorID: req.SupervisorID,
		DeviceID:     req.DeviceID,
		Password:     req.Password,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   result.Message,
		"worker_id": result.WorkerID,
	})
}

type workerResponse struct {
	ID           string    `json:"id"`
	WorkerID     string    `json:"worker_id"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	HealthIssues string    `json:"health_issues"`
	SupervisorID *string   `json:"supervisor_id"`
	DeviceID     *string   `json:"device_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type workerStatusResponse struct {
	workerResponse
	HealthStatus    models.HealthStatus `json:"health_status"`
	HeartRate       *int                `json:"heart_rate"`
	BodyTemperature *float64            `json:"body_temperature"`
	LastReadingAt   *time.Time          `json:"last_reading_at"`
}

func toWorkerResponse(w models.Worker) workerResponse {
	return workerResponse{
		ID:           w.ID,
		WorkerID:     w.WorkerCode,
		Name:         w.Name,
		Age:          w.Age,
		HealthIssues: w.HealthIssues,
		SupervisorID: w.SupervisorID,
		DeviceID:     w.DeviceID,
		IsActive:     w.IsActive,
		CreatedAt:    w.CreatedAt,
	}
}

func (h HandlerSet) ListWorkers(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	rows, err := h.workers.List(c.Request.Context(), caller)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	out := make([]workerStatusResponse, 0, len(rows))
	for _, ws := range rows {
		out = append(out, workerStatusResponse{
			workerResponse:  toWorkerResponse(ws.Worker),
			HealthStatus:    ws.HealthStatus,
			HeartRate:       ws.HeartRate,
			BodyTemperature: ws.BodyTemperature,
			LastReadingAt:   ws.LastReadingAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"workers": out})
}

func (h HandlerSet) MyWorker(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	w, err := h.workers.Me(c.Request.Context(), caller)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWorkerResponse(w))
}

func (h HandlerSet) ListReadings(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.AbortWithError(c, apperr.Validation("Invalid limit", map[string]string{"limit": "Invalid limit"}))
			return
		}
		limit = n
	}

	readings, err := h.workers.Readings(c.Request.Context(), caller, c.Param("id"), limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings})
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h HandlerSet) SetWorkerActive(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		middleware.AbortWithError(c, apperr.Validation("is_active is required", map[string]string{"is_active": "is_active is required"}))
		return
	}

	w, err := h.workers.SetActive(c.Request.Context(), caller, c.Param("id"), *req.IsActive)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toWorkerResponse(w))
}

func (h HandlerSet) ExportReadings(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	res, err := h.reports.ExportReadings(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        res.URL,
		"key":        res.Key,
		"rows":       res.Rows,
		"expires_at": res.ExpiresAt,
	})
}

type supervisorResponse struct {
	ID           string `json:"id"`
	SupervisorID string `json:"supervisor_id"`
	Name         string `json:"name"`
	Department   string `json:"department"`
}

func (h HandlerSet) ListSupervisors(c *gin.Context) {
	rows, err := h.workers.Supervisors(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	out := make([]supervisorResponse, 0, len(rows))
	for _, s := range rows {
		out = append(out, supervisorResponse{
			ID:           s.ID,
			SupervisorID: s.SupervisorCode,
			Name:         s.Name,
			Department:   s.Department,
		})
	}
	c.JSON(http.StatusOK, gin.H{"supervisors": out})
}
