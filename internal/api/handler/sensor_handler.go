package handler

import (
	"errors"
	"net/http"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"

	"github.com/gin-gonic/gin"
)

type SensorHandler struct {
	occupancyService *service.OccupancyService
}

func NewSensorHandler(os *service.OccupancyService) *SensorHandler {
	return &SensorHandler{occupancyService: os}
}

// POST /sensors/events
// Device-key protected. Responds with the slot's standing status so the
// device can verify the effect of its reading.
func (h *SensorHandler) IngestEvent(c *gin.Context) {
	var dto domain.SensorEventDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.occupancyService.RecordSample(c.Request.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "slot not found"})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record sample", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, status)
}
