package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// UnknownVehicle is recorded when plate extraction produced no text for an
// entry event.
const UnknownVehicle = "UNKNOWN"

// VehicleLog is created on entry detection and mutated exactly once, on
// exit detection. ExitTS null means the vehicle is still inside.
type VehicleLog struct {
	ID            int         `json:"id"`
	VehicleNumber string      `json:"vehicle_number"`
	SlotID        null.Int    `json:"slot_id"`
	EntryTS       time.Time   `json:"entry_ts"`
	ExitTS        null.Time   `json:"exit_ts"`
	BookingID     null.Int    `json:"booking_id"`
	PlateImage    null.String `json:"plate_image"`
	OcrText       null.String `json:"ocr_text"`
	CreatedAt     time.Time   `json:"created_at"`
}

type VehicleEntryDTO struct {
	PlateText string `json:"plate_text"`
	SlotID    *int   `json:"slot_id"`
	// RFC3339; server time when absent.
	Timestamp   string `json:"ts"`
	ImageBase64 string `json:"image_base64"`
}

type VehicleExitDTO struct {
	PlateText    string `json:"plate_text"`
	VehicleLogID *int   `json:"vehicle_log_id"`
	Timestamp    string `json:"ts"`
}
