package handler

import (
	"errors"
	"net/http"
	"strconv"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"

	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	slotService *service.SlotService
}

func NewSlotHandler(ss *service.SlotService) *SlotHandler {
	return &SlotHandler{slotService: ss}
}

// GET /slots
// Public availability board: active slots with live status.
func (h *SlotHandler) GetBoard(c *gin.Context) {
	views, err := h.slotService.Board(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list slots"})
		return
	}
	c.JSON(http.StatusOK, views)
}

// GET /admin/slots
func (h *SlotHandler) GetAll(c *gin.Context) {
	views, err := h.slotService.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list slots"})
		return
	}
	c.JSON(http.StatusOK, views)
}

// GET /slots/:id
func (h *SlotHandler) GetByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
		return
	}

	slot, err := h.slotService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "slot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch slot"})
		return
	}
	c.JSON(http.StatusOK, slot)
}

// POST /slots
func (h *SlotHandler) Create(c *gin.Context) {
	var dto domain.ParkingSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := h.slotService.Create(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create slot", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// PUT /slots/:id
func (h *SlotHandler) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
		return
	}

	var dto domain.ParkingSlotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := h.slotService.Update(c.Request.Context(), id, dto)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "slot not found"})
			return
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update slot", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, slot)
}

// DELETE /slots/:id
func (h *SlotHandler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
		return
	}

	if err := h.slotService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "slot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete slot", "details": err.Error()})
		return
	}
	c.JSON(http.StatusNoContent, nil)
}
