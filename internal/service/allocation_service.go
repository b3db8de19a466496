package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// Reservation window when no ETA is given.
const walkInWindow = 30 * time.Minute

// AllocationService claims slots for bookings and releases them when the
// booking dies. Slot selection happens inside the status repository in a
// single atomic statement, so two concurrent bookings can never be granted
// the same slot.
type AllocationService struct {
	bookingRepo repository.BookingRepository
	statusRepo  repository.SlotStatusRepository
	reconciler  *ReconcilerService

	leadTime  time.Duration
	graceTime time.Duration
}

func NewAllocationService(
	bookingRepo repository.BookingRepository,
	statusRepo repository.SlotStatusRepository,
	reconciler *ReconcilerService,
	cfg *config.Config,
) *AllocationService {
	return &AllocationService{
		bookingRepo: bookingRepo,
		statusRepo:  statusRepo,
		reconciler:  reconciler,
		leadTime:    cfg.ReservationLeadTime,
		graceTime:   cfg.ReservationGraceTime,
	}
}

// Allocate reserves the first free slot for the user and records the
// booking. If the booking row cannot be written after the slot was claimed,
// the claim is rolled back so the slot is not leaked.
func (s *AllocationService) Allocate(ctx context.Context, userID int, dto domain.BookingCreateDTO) (*domain.Booking, error) {
	now := time.Now().UTC()

	var eta null.Time
	reservedFrom, reservedUntil := now, now.Add(walkInWindow)
	if dto.Eta != "" {
		parsed, err := time.Parse(time.RFC3339, dto.Eta)
		if err != nil {
			return nil, fmt.Errorf("%w: eta must be RFC3339", ErrValidation)
		}
		eta = null.TimeFrom(parsed.UTC())
		reservedFrom = parsed.UTC().Add(-s.leadTime)
		reservedUntil = parsed.UTC().Add(s.graceTime)
		if reservedUntil.Before(now) {
			return nil, fmt.Errorf("%w: eta is already past its grace period", ErrValidation)
		}
	}

	slot, err := s.statusRepo.ClaimFirstFree(ctx, domain.SourceReservation, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSlotsAvailable
		}
		return nil, err
	}

	booking := &domain.Booking{
		UserID:        userID,
		SlotID:        null.IntFrom(int64(slot.ID)),
		VehicleNumber: strings.ToUpper(strings.TrimSpace(dto.VehicleNumber)),
		Eta:           eta,
		ReservedFrom:  reservedFrom,
		ReservedUntil: reservedUntil,
		Status:        domain.BookingActive,
	}
	created, err := s.bookingRepo.Create(ctx, booking)
	if err != nil {
		s.release(ctx, slot.ID, domain.SourceCancellation, now)
		return nil, err
	}
	created.SlotLabel = slot.Label

	s.reconciler.AnnounceClaim(ctx, slot, now)
	return created, nil
}

// Cancel moves an active booking to cancelled and frees its slot. The
// requester must own the booking unless isAdmin is set.
func (s *AllocationService) Cancel(ctx context.Context, bookingID, requesterID int, isAdmin bool) (*domain.Booking, error) {
	booking, err := s.bookingRepo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.UserID != requesterID {
		return nil, ErrForbidden
	}

	ok, err := s.bookingRepo.UpdateStatus(ctx, bookingID, domain.BookingActive, domain.BookingCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBookingNotActive
	}

	if booking.SlotID.Valid {
		s.release(ctx, int(booking.SlotID.Int64), domain.SourceCancellation, time.Now().UTC())
	}
	booking.Status = domain.BookingCancelled
	return booking, nil
}

// ListForUser returns the user's bookings, newest first.
func (s *AllocationService) ListForUser(ctx context.Context, userID int) ([]domain.Booking, error) {
	return s.bookingRepo.FindByUser(ctx, userID)
}

func (s *AllocationService) Get(ctx context.Context, bookingID int) (*domain.Booking, error) {
	return s.bookingRepo.FindByID(ctx, bookingID)
}

// ExpireOverdueReservations cancels active bookings whose reservation
// window lapsed without the vehicle arriving and frees their slots. Only
// bookings whose slot still sits in 'reserved' are eligible; an arrived
// vehicle keeps its booking alive until exit.
func (s *AllocationService) ExpireOverdueReservations(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	overdue, err := s.bookingRepo.FindExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, booking := range overdue {
		ok, err := s.bookingRepo.UpdateStatus(ctx, booking.ID, domain.BookingActive, domain.BookingCancelled)
		if err != nil {
			log.Printf("AllocationService: could not expire booking %d: %v", booking.ID, err)
			continue
		}
		if !ok {
			// Completed or cancelled since the listing; nothing to do.
			continue
		}
		if booking.SlotID.Valid {
			s.release(ctx, int(booking.SlotID.Int64), domain.SourceExpirySweep, now)
		}
		expired++
	}
	if expired > 0 {
		log.Printf("AllocationService: expired %d overdue reservation(s)", expired)
	}
	return expired, nil
}

// release frees a reserved slot through the reconciler. Failures are logged
// and swallowed: the booking state change already happened and the slot
// state will be corrected by the next sensor or vehicle event.
func (s *AllocationService) release(ctx context.Context, slotID int, source string, at time.Time) {
	if _, err := s.reconciler.Apply(ctx, slotID, source, domain.StateFree, at); err != nil {
		log.Printf("AllocationService: could not release slot %d (%s): %v", slotID, source, err)
	}
}
