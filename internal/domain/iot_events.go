package domain

import "encoding/json"

// GenericIoTEvent is the first-pass parse of a queue message: enough to
// pick a handler and to validate the device credential.
type GenericIoTEvent struct {
	DeviceKey   string          `json:"device_key"`
	MessageType string          `json:"message_type"`
	Timestamp   string          `json:"timestamp"` // ISO 8601 UTC from the device
	RawPayload  json.RawMessage `json:"-"`
}

const (
	MessageTypeSensorSample = "sensor_sample"
	MessageTypeVehicleEntry = "vehicle_entry"
	MessageTypeVehicleExit  = "vehicle_exit"
)

type DeviceSensorSampleEvent struct {
	GenericIoTEvent
	SlotID     int     `json:"slot_id"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
}

type DeviceVehicleEvent struct {
	GenericIoTEvent
	PlateText    string `json:"plate_text,omitempty"`
	SlotID       *int   `json:"slot_id,omitempty"`
	VehicleLogID *int   `json:"vehicle_log_id,omitempty"`
}

// GateCommandPayload is published to the device command topic.
type GateCommandPayload struct {
	Command   string `json:"command"` // "open" or "close"
	Direction string `json:"direction"`
	RequestID string `json:"request_id,omitempty"`
}
