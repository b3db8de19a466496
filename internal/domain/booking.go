package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking rows are never deleted, only status-transitioned, so the table
// doubles as the reservation audit trail.
type Booking struct {
	ID            int           `json:"id"`
	UserID        int           `json:"user_id"`
	SlotID        null.Int      `json:"slot_id"` // cleared if the slot is deleted
	VehicleNumber string        `json:"vehicle_number"`
	Eta           null.Time     `json:"eta"`
	ReservedFrom  time.Time     `json:"reserved_from"`
	ReservedUntil time.Time     `json:"reserved_until"`
	Status        BookingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	SlotLabel string `json:"slot_label,omitempty"`
}

type BookingCreateDTO struct {
	VehicleNumber string `json:"vehicle_number" binding:"required,max=20"`
	// RFC3339; when empty the reservation window starts now.
	Eta string `json:"eta"`
}
