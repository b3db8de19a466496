package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"parkwatch/internal/domain"
)

// DeviceEventService parses queue messages coming off the device fleet and
// dispatches them to the ingestion services. Malformed or misattributed
// slot references are dropped (the message must not be redelivered); only
// infrastructure failures propagate so the queue retries them.
type DeviceEventService struct {
	occupancy *OccupancyService
	vehicles  *VehicleEventService
	deviceKey string
}

func NewDeviceEventService(occupancy *OccupancyService, vehicles *VehicleEventService, deviceKey string) *DeviceEventService {
	return &DeviceEventService{
		occupancy: occupancy,
		vehicles:  vehicles,
		deviceKey: deviceKey,
	}
}

func (s *DeviceEventService) HandleDeviceEvent(ctx context.Context, messageBody string) error {
	rawPayload := json.RawMessage(messageBody)

	var genericEvent domain.GenericIoTEvent
	if err := json.Unmarshal(rawPayload, &genericEvent); err != nil {
		// Unparseable bodies will never parse on retry.
		log.Printf("DeviceEventService: dropping unparseable message: %v. Body: %s", err, messageBody)
		return nil
	}
	genericEvent.RawPayload = rawPayload

	if genericEvent.DeviceKey != s.deviceKey {
		log.Printf("DeviceEventService: dropping message with bad device key (type '%s')", genericEvent.MessageType)
		return nil
	}

	switch genericEvent.MessageType {
	case domain.MessageTypeSensorSample:
		var event domain.DeviceSensorSampleEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err != nil {
			log.Printf("DeviceEventService: dropping malformed sensor_sample: %v", err)
			return nil
		}
		event.GenericIoTEvent = genericEvent
		return s.handleSensorSample(ctx, event)

	case domain.MessageTypeVehicleEntry:
		var event domain.DeviceVehicleEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err != nil {
			log.Printf("DeviceEventService: dropping malformed vehicle_entry: %v", err)
			return nil
		}
		event.GenericIoTEvent = genericEvent
		_, err := s.vehicles.RecordEntry(ctx, domain.VehicleEntryDTO{
			PlateText: event.PlateText,
			SlotID:    event.SlotID,
			Timestamp: event.Timestamp,
		})
		return dropDomainErrors("vehicle_entry", err)

	case domain.MessageTypeVehicleExit:
		var event domain.DeviceVehicleEvent
		if err := json.Unmarshal(genericEvent.RawPayload, &event); err != nil {
			log.Printf("DeviceEventService: dropping malformed vehicle_exit: %v", err)
			return nil
		}
		event.GenericIoTEvent = genericEvent
		_, err := s.vehicles.RecordExit(ctx, domain.VehicleExitDTO{
			PlateText:    event.PlateText,
			VehicleLogID: event.VehicleLogID,
		})
		return dropDomainErrors("vehicle_exit", err)

	default:
		log.Printf("DeviceEventService: unhandled message type '%s'", genericEvent.MessageType)
		return nil
	}
}

func (s *DeviceEventService) handleSensorSample(ctx context.Context, event domain.DeviceSensorSampleEvent) error {
	slotID := event.SlotID
	value := event.Value
	_, err := s.occupancy.RecordSample(ctx, domain.SensorEventDTO{
		SlotID:     &slotID,
		SensorType: event.SensorType,
		Value:      &value,
		Timestamp:  event.Timestamp,
	})
	return dropDomainErrors("sensor_sample", err)
}

// dropDomainErrors separates retriable infrastructure failures from domain
// outcomes that retrying cannot fix (unknown slot, no open entry, bad
// payload fields).
func dropDomainErrors(messageType string, err error) error {
	if err == nil {
		return nil
	}
	var nonRetriable bool
	switch {
	case errors.Is(err, ErrValidation):
		nonRetriable = true
	case isNotFoundLike(err):
		nonRetriable = true
	}
	if nonRetriable {
		log.Printf("DeviceEventService: dropping %s event: %v", messageType, err)
		return nil
	}
	return fmt.Errorf("processing %s event: %w", messageType, err)
}
