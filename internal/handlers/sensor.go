package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"safetywatch/internal/apperr"
	"safetywatch/internal/ingest"
	"safetywatch/internal/middleware"
)

const (
	maxSensorBody  = 64 << 10
	deviceIDHeader = "X-Device-Id"
)

// SubmitSensorData accepts telemetry as JSON or CBOR. Devices are trusted by
// the identifier they present, not by a user session.
func (h HandlerSet) SubmitSensorData(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSensorBody+1))
	if err != nil {
		middleware.AbortWithError(c, apperr.Validation("Invalid request body", nil))
		return
	}
	if len(body) > maxSensorBody {
		middleware.AbortWithError(c, apperr.Validation("Request body too large", nil))
		return
	}

	payload, err := ingest.Decode(c.ContentType(), body)
	if err != nil {
		msg := "Invalid request body"
		if errors.Is(err, ingest.ErrUnsupportedContentType) {
			msg = "Unsupported content type"
		}
		middleware.AbortWithError(c, apperr.Validation(msg, nil))
		return
	}
	if strings.TrimSpace(payload.DeviceID) == "" {
		payload.DeviceID = c.GetHeader(deviceIDHeader)
	}

	if _, err := h.ingestion.Submit(c.Request.Context(), payload.Sensor()); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Sensor data recorded"})
}
