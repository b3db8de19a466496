package domain

import "time"

const DefaultSensorType = "ultrasonic"

// SensorSample is the append-only raw reading log the debouncer votes over.
type SensorSample struct {
	ID         int64     `json:"id"`
	SlotID     int       `json:"slot_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	TS         time.Time `json:"ts"`
}

type OccupancySignal string

const (
	SignalOccupied OccupancySignal = "occupied"
	SignalFree     OccupancySignal = "free"
	// SignalNone means too few samples to vote; the prior status holds.
	SignalNone OccupancySignal = "none"
)

type SensorEventDTO struct {
	SlotID     *int     `json:"slot_id" binding:"required"`
	SensorType string   `json:"sensor_type"`
	Value      *float64 `json:"value" binding:"required"`
	// RFC3339; server time when absent. Out-of-order delivery is fine, the
	// debounce window is re-sorted on read.
	Timestamp string `json:"ts"`
}
