package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
)

var ErrInvalidTransition = errors.New("invalid slot state transition")

// SlotBoardCache is what the reconciler needs from the cache layer.
type SlotBoardCache interface {
	InvalidateSlotBoard(ctx context.Context) error
}

// StatusBroadcaster pushes applied transitions to live subscribers.
type StatusBroadcaster interface {
	BroadcastSlotStatus(n domain.SlotStatusNotification)
}

const slotLockStripes = 64

// ReconcilerService is the only writer of SlotStatus. Three independent
// event streams feed it (sensor debounce, reservation lifecycle, vehicle
// detection); a striped per-slot mutex serializes them in-process and the
// repository's conditional update is the final arbiter, so a transition is
// never applied over a state it was not computed against.
type ReconcilerService struct {
	slotRepo    repository.SlotRepository
	statusRepo  repository.SlotStatusRepository
	cache       SlotBoardCache
	broadcaster StatusBroadcaster

	locks [slotLockStripes]sync.Mutex
}

func NewReconcilerService(
	slotRepo repository.SlotRepository,
	statusRepo repository.SlotStatusRepository,
	cache SlotBoardCache,
	broadcaster StatusBroadcaster,
) *ReconcilerService {
	return &ReconcilerService{
		slotRepo:    slotRepo,
		statusRepo:  statusRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

func (s *ReconcilerService) lockFor(slotID int) *sync.Mutex {
	idx := slotID % slotLockStripes
	if idx < 0 {
		idx += slotLockStripes
	}
	return &s.locks[idx]
}

// Current returns the slot's status, creating the row lazily as 'free'.
func (s *ReconcilerService) Current(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	return s.statusRepo.GetOrCreate(ctx, slotID)
}

// Apply runs one reconciliation step for a slot. Re-applying the current
// state is a no-op: the status value stays, last_update is not refreshed.
// The returned status reflects the row after the step.
func (s *ReconcilerService) Apply(ctx context.Context, slotID int, source string, hint domain.SlotState, eventTime time.Time) (*domain.SlotStatus, error) {
	mu := s.lockFor(slotID)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.statusRepo.GetOrCreate(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if current.Status == hint {
		return current, nil
	}

	from, err := allowedFromStates(source, hint)
	if err != nil {
		return nil, err
	}

	// Plate-identified events outrank distance readings: a debounce signal
	// is dropped when the standing state was written by a vehicle event at
	// the same instant or later.
	if source == domain.SourceSensorDebounce && vehicleSourced(current.LastSource) && !current.LastUpdate.Before(eventTime) {
		log.Printf("Reconciler: skipping debounce %s for slot %d, state held by %s at %v",
			hint, slotID, current.LastSource, current.LastUpdate)
		return current, nil
	}

	applied, err := s.statusRepo.Transition(ctx, slotID, from, hint, source, eventTime)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Current state was outside the legal from-set; the standing state
		// wins. Not an error: absence of a transition is a valid outcome.
		log.Printf("Reconciler: %s hint %s not applicable for slot %d (state %s)",
			source, hint, slotID, current.Status)
		return s.statusRepo.FindBySlotID(ctx, slotID)
	}

	updated, err := s.statusRepo.FindBySlotID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, slotID, updated.Status, source, eventTime)
	return updated, nil
}

// AnnounceClaim publishes a transition that was applied outside Apply (the
// allocator's atomic claim writes the row itself).
func (s *ReconcilerService) AnnounceClaim(ctx context.Context, slot *domain.ParkingSlot, at time.Time) {
	notification := domain.SlotStatusNotification{
		SlotID:    slot.ID,
		Label:     slot.Label,
		Status:    domain.StateReserved,
		Source:    domain.SourceReservation,
		Timestamp: at.UTC(),
	}
	s.publish(ctx, notification)
}

func (s *ReconcilerService) announce(ctx context.Context, slotID int, status domain.SlotState, source string, at time.Time) {
	notification := domain.SlotStatusNotification{
		SlotID:    slotID,
		Status:    status,
		Source:    source,
		Timestamp: at.UTC(),
	}
	if slot, err := s.slotRepo.FindByID(ctx, slotID); err == nil {
		notification.Label = slot.Label
	}
	s.publish(ctx, notification)
}

func (s *ReconcilerService) publish(ctx context.Context, n domain.SlotStatusNotification) {
	if s.cache != nil {
		if err := s.cache.InvalidateSlotBoard(ctx); err != nil {
			log.Printf("Reconciler: slot board invalidation failed: %v", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSlotStatus(n)
	}
}

// allowedFromStates encodes the per-slot state machine.
func allowedFromStates(source string, hint domain.SlotState) ([]domain.SlotState, error) {
	switch source {
	case domain.SourceSensorDebounce:
		switch hint {
		case domain.StateOccupied:
			// Covers both the reserved arrival and the unreserved walk-in.
			return []domain.SlotState{domain.StateFree, domain.StateReserved}, nil
		case domain.StateFree:
			// A reserved slot reading empty is expected (vehicle not there
			// yet), so only occupied slots are released by the sensor.
			return []domain.SlotState{domain.StateOccupied}, nil
		}
	case domain.SourceVehicleEntry:
		if hint == domain.StateOccupied {
			return []domain.SlotState{domain.StateFree, domain.StateReserved}, nil
		}
	case domain.SourceVehicleExit:
		if hint == domain.StateFree {
			return []domain.SlotState{domain.StateOccupied}, nil
		}
	case domain.SourceReservation:
		if hint == domain.StateReserved {
			return []domain.SlotState{domain.StateFree}, nil
		}
	case domain.SourceExpirySweep, domain.SourceCancellation:
		if hint == domain.StateFree {
			return []domain.SlotState{domain.StateReserved}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, source, hint)
}

func vehicleSourced(source string) bool {
	return source == domain.SourceVehicleEntry || source == domain.SourceVehicleExit
}
