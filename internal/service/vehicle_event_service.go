package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"
)

// PlateExtractor reads a license plate out of a gate camera frame. An empty
// string with a nil error is a valid outcome (no plate found).
type PlateExtractor interface {
	ExtractPlate(ctx context.Context, image []byte) (string, error)
}

// GateCommander asks the barrier hardware to open for a direction.
type GateCommander interface {
	OpenGate(ctx context.Context, direction string) error
}

// VehicleEventService turns gate detections into vehicle log entries,
// correlates them with active bookings and drives the matched slot's state.
// Plate extraction and gate control are both best-effort: their failures
// degrade the event, never reject it.
type VehicleEventService struct {
	bookingRepo repository.BookingRepository
	logRepo     repository.VehicleLogRepository
	slotRepo    repository.SlotRepository
	reconciler  *ReconcilerService
	plates      PlateExtractor
	gates       GateCommander
	imageDir    string
}

func NewVehicleEventService(
	bookingRepo repository.BookingRepository,
	logRepo repository.VehicleLogRepository,
	slotRepo repository.SlotRepository,
	reconciler *ReconcilerService,
	plates PlateExtractor,
	gates GateCommander,
	imageDir string,
) *VehicleEventService {
	return &VehicleEventService{
		bookingRepo: bookingRepo,
		logRepo:     logRepo,
		slotRepo:    slotRepo,
		reconciler:  reconciler,
		plates:      plates,
		gates:       gates,
		imageDir:    imageDir,
	}
}

// RecordEntry logs an arriving vehicle. The plate comes from the request
// text or, failing that, from OCR on the attached frame; with neither the
// entry is still recorded under UNKNOWN. A matched booking's slot is forced
// to occupied; the detection slot (if any) is only kept on the log row.
func (s *VehicleEventService) RecordEntry(ctx context.Context, dto domain.VehicleEntryDTO) (*domain.VehicleLog, error) {
	ts, err := parseEventTime(dto.Timestamp)
	if err != nil {
		return nil, err
	}

	plate := normalizePlate(dto.PlateText)

	var plateImage null.String
	if dto.ImageBase64 != "" {
		frame, err := base64.StdEncoding.DecodeString(dto.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: image_base64 is not valid base64", ErrValidation)
		}
		if path, err := s.storePlateImage(frame); err != nil {
			log.Printf("VehicleEventService: could not store plate image: %v", err)
		} else {
			plateImage = null.StringFrom(path)
		}
		if plate == "" && s.plates != nil {
			text, err := s.plates.ExtractPlate(ctx, frame)
			if err != nil {
				log.Printf("VehicleEventService: plate extraction failed, logging entry without plate: %v", err)
			} else {
				plate = normalizePlate(text)
			}
		}
	}

	var booking *domain.Booking
	if plate != "" {
		booking, err = s.bookingRepo.FindActiveByPlateFragment(ctx, plate)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	entry := &domain.VehicleLog{
		VehicleNumber: plateOrUnknown(plate),
		SlotID:        s.detectionSlot(ctx, dto.SlotID),
		EntryTS:       ts,
		PlateImage:    plateImage,
	}
	if plate != "" {
		entry.OcrText = null.StringFrom(plate)
	}
	if booking != nil {
		entry.BookingID = null.IntFrom(int64(booking.ID))
	}

	created, err := s.logRepo.Create(ctx, entry)
	if err != nil {
		return nil, err
	}

	switch {
	case booking != nil && booking.SlotID.Valid:
		s.occupy(ctx, int(booking.SlotID.Int64), ts)
		s.openGate(ctx, "entry")
	case created.SlotID.Valid:
		// Walk-in, or a matched booking whose slot was deleted out from
		// under it. The detection slot is the only physical evidence left.
		s.occupy(ctx, int(created.SlotID.Int64), ts)
		if booking != nil {
			s.openGate(ctx, "entry")
		}
	}
	return created, nil
}

// RecordExit closes a log entry, frees the slot and completes the booking.
// The entry is resolved by explicit log id or, failing that, by the newest
// open entry matching the plate fragment.
func (s *VehicleEventService) RecordExit(ctx context.Context, dto domain.VehicleExitDTO) (*domain.VehicleLog, error) {
	ts, err := parseEventTime(dto.Timestamp)
	if err != nil {
		return nil, err
	}

	plate := normalizePlate(dto.PlateText)

	var entry *domain.VehicleLog
	switch {
	case dto.VehicleLogID != nil:
		entry, err = s.logRepo.FindByID(ctx, *dto.VehicleLogID)
		if err != nil {
			return nil, err
		}
	case plate != "":
		entry, err = s.logRepo.FindLatestOpenByPlateFragment(ctx, plate)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: plate_text or vehicle_log_id is required", ErrValidation)
	}

	closed, err := s.logRepo.CloseEntry(ctx, entry.ID, ts)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNoOpenLogEntry
		}
		return nil, err
	}

	slotID, ok := s.exitSlot(ctx, closed)
	if ok {
		if _, err := s.reconciler.Apply(ctx, slotID, domain.SourceVehicleExit, domain.StateFree, ts); err != nil {
			log.Printf("VehicleEventService: could not free slot %d on exit: %v", slotID, err)
		}
	}

	if closed.BookingID.Valid {
		done, err := s.bookingRepo.UpdateStatus(ctx, int(closed.BookingID.Int64), domain.BookingActive, domain.BookingCompleted)
		if err != nil {
			log.Printf("VehicleEventService: could not complete booking %d: %v", closed.BookingID.Int64, err)
		} else if !done {
			log.Printf("VehicleEventService: booking %d was not active at exit", closed.BookingID.Int64)
		}
	}

	s.openGate(ctx, "exit")
	return closed, nil
}

// RecentLogs lists the newest entries for the admin dashboard.
func (s *VehicleEventService) RecentLogs(ctx context.Context, limit int) ([]domain.VehicleLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.logRepo.FindRecent(ctx, limit)
}

func (s *VehicleEventService) occupy(ctx context.Context, slotID int, ts time.Time) {
	if _, err := s.reconciler.Apply(ctx, slotID, domain.SourceVehicleEntry, domain.StateOccupied, ts); err != nil {
		log.Printf("VehicleEventService: could not mark slot %d occupied: %v", slotID, err)
	}
}

// detectionSlot validates the camera's slot hint. An unknown slot id is
// dropped rather than rejected: the entry itself is still valid.
func (s *VehicleEventService) detectionSlot(ctx context.Context, slotID *int) null.Int {
	if slotID == nil {
		return null.Int{}
	}
	slot, err := s.slotRepo.FindByID(ctx, *slotID)
	if err != nil {
		log.Printf("VehicleEventService: ignoring unknown detection slot %d", *slotID)
		return null.Int{}
	}
	return null.IntFrom(int64(slot.ID))
}

// exitSlot picks the slot to free: the log's own slot first, then the
// matched booking's slot.
func (s *VehicleEventService) exitSlot(ctx context.Context, entry *domain.VehicleLog) (int, bool) {
	if entry.SlotID.Valid {
		return int(entry.SlotID.Int64), true
	}
	if entry.BookingID.Valid {
		booking, err := s.bookingRepo.FindByID(ctx, int(entry.BookingID.Int64))
		if err == nil && booking.SlotID.Valid {
			return int(booking.SlotID.Int64), true
		}
	}
	return 0, false
}

func (s *VehicleEventService) openGate(ctx context.Context, direction string) {
	if s.gates == nil {
		return
	}
	if err := s.gates.OpenGate(ctx, direction); err != nil {
		log.Printf("VehicleEventService: gate open (%s) failed: %v", direction, err)
	}
}

func (s *VehicleEventService) storePlateImage(frame []byte) (string, error) {
	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.imageDir, uuid.NewString()+".jpg")
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func parseEventTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: ts must be RFC3339", ErrValidation)
	}
	return parsed.UTC(), nil
}

func normalizePlate(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

func plateOrUnknown(plate string) string {
	if plate == "" {
		return domain.UnknownVehicle
	}
	return plate
}
