package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"

	"github.com/gin-gonic/gin"
)

const maxPlateImageBytes = 5 << 20

type VehicleHandler struct {
	vehicleService *service.VehicleEventService
	plateService   service.PlateExtractor
}

func NewVehicleHandler(vs *service.VehicleEventService, ps service.PlateExtractor) *VehicleHandler {
	return &VehicleHandler{vehicleService: vs, plateService: ps}
}

// POST /vehicle/entry
func (h *VehicleHandler) Entry(c *gin.Context) {
	var dto domain.VehicleEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.vehicleService.RecordEntry(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record entry", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// POST /vehicle/exit
func (h *VehicleHandler) Exit(c *gin.Context) {
	var dto domain.VehicleExitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.vehicleService.RecordExit(c.Request.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNoOpenLogEntry):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "vehicle log entry not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record exit", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GET /vehicle/logs
func (h *VehicleHandler) RecentLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.vehicleService.RecentLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list vehicle logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// POST /ocr/plate
// Multipart image upload; returns the extracted plate text without creating
// a log entry. Used by the operator console to preview OCR results.
func (h *VehicleHandler) ExtractPlate(c *gin.Context) {
	if h.plateService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "plate recognition is not configured"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if fileHeader.Size > maxPlateImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open uploaded file"})
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read uploaded file"})
		return
	}

	plate, err := h.plateService.ExtractPlate(c.Request.Context(), imageBytes)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "plate recognition failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"plate_text": plate,
		"image_size": len(imageBytes),
	})
}
