package domain

import "time"

type SlotState string

const (
	StateFree     SlotState = "free"
	StateOccupied SlotState = "occupied"
	StateReserved SlotState = "reserved"
)

// Sources recorded on a SlotStatus row so the reconciler can tell which
// signal stream produced the current state.
const (
	SourceSensorDebounce = "sensor_debounce"
	SourceReservation    = "reservation"
	SourceVehicleEntry   = "vehicle_entry"
	SourceVehicleExit    = "vehicle_exit"
	SourceExpirySweep    = "reservation_expiry"
	SourceCancellation   = "booking_cancel"
	SourceAdmin          = "admin"
)

type ParkingSlot struct {
	ID             int       `json:"id"`
	Label          string    `json:"label"`
	Zone           string    `json:"zone,omitempty"`
	MaxVehicleType string    `json:"max_vehicle_type"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SlotStatus is the single mutable occupancy record per slot, created
// lazily on first write. Only the reconciler writes it.
type SlotStatus struct {
	ID         int       `json:"id"`
	SlotID     int       `json:"slot_id"`
	Status     SlotState `json:"status"`
	LastSource string    `json:"last_source,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// SlotView joins a slot with its current status for the availability board.
type SlotView struct {
	ParkingSlot
	Status SlotState `json:"status"`
}

type ParkingSlotDTO struct {
	Label          string `json:"label" binding:"required,max=20"`
	Zone           string `json:"zone"`
	MaxVehicleType string `json:"max_vehicle_type"`
	IsActive       *bool  `json:"is_active"`
}

// SlotStatusNotification is pushed to websocket subscribers whenever the
// reconciler applies a transition.
type SlotStatusNotification struct {
	SlotID    int       `json:"slot_id"`
	Label     string    `json:"label"`
	Status    SlotState `json:"status"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
