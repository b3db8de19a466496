package handler

import (
	"errors"
	"net/http"
	"strconv"

	"parkwatch/internal/api/middleware"
	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
	"parkwatch/internal/service"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	allocationService *service.AllocationService
}

func NewBookingHandler(as *service.AllocationService) *BookingHandler {
	return &BookingHandler{allocationService: as}
}

// POST /bookings
func (h *BookingHandler) Create(c *gin.Context) {
	userID, _ := middleware.CallerIdentity(c)

	var dto domain.BookingCreateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.allocationService.Allocate(c.Request.Context(), userID, dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSlotsAvailable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create booking", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, booking)
}

// GET /bookings
func (h *BookingHandler) ListMine(c *gin.Context) {
	userID, _ := middleware.CallerIdentity(c)

	bookings, err := h.allocationService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list bookings"})
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// GET /bookings/:id
func (h *BookingHandler) GetByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.allocationService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch booking"})
		return
	}

	userID, role := middleware.CallerIdentity(c)
	if role != "admin" && booking.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}
	c.JSON(http.StatusOK, booking)
}

// POST /bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	userID, role := middleware.CallerIdentity(c)
	booking, err := h.allocationService.Cancel(c.Request.Context(), id, userID, role == "admin")
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrBookingNotActive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not cancel booking", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, booking)
}
