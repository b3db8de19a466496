package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

func allocationConfig() *config.Config {
	return &config.Config{
		ReservationLeadTime:  15 * time.Minute,
		ReservationGraceTime: 15 * time.Minute,
	}
}

func allocationFixture(t *testing.T) (*AllocationService, *MockBookingRepository, *MockSlotStatusRepository, *recordingBroadcaster) {
	t.Helper()
	bookingRepo := &MockBookingRepository{}
	statusRepo := &MockSlotStatusRepository{}
	broadcaster := &recordingBroadcaster{}
	slotRepo := &MockSlotRepository{}
	// Label lookups for notifications are incidental here.
	slotRepo.On("FindByID", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound).Maybe()
	reconciler := NewReconcilerService(slotRepo, statusRepo, nil, broadcaster)
	svc := NewAllocationService(bookingRepo, statusRepo, reconciler, allocationConfig())
	return svc, bookingRepo, statusRepo, broadcaster
}

func TestAllocate_ClaimsSlotAndCreatesBooking(t *testing.T) {
	svc, bookingRepo, statusRepo, broadcaster := allocationFixture(t)

	slot := &domain.ParkingSlot{ID: 5, Label: "B5", IsActive: true}
	statusRepo.On("ClaimFirstFree", mock.Anything, domain.SourceReservation, mock.Anything).
		Return(slot, nil)

	eta := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	bookingRepo.On("Create", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.UserID == 42 &&
			b.SlotID.Valid && b.SlotID.Int64 == 5 &&
			b.VehicleNumber == "KA01AB1234" &&
			b.ReservedFrom.Equal(eta.Add(-15*time.Minute)) &&
			b.ReservedUntil.Equal(eta.Add(15*time.Minute)) &&
			b.Status == domain.BookingActive
	})).Return(&domain.Booking{
		ID: 1, UserID: 42, SlotID: null.IntFrom(5), Status: domain.BookingActive,
	}, nil)

	booking, err := svc.Allocate(context.Background(), 42, domain.BookingCreateDTO{
		VehicleNumber: "ka01ab1234",
		Eta:           eta.Format(time.RFC3339),
	})

	require.NoError(t, err)
	assert.Equal(t, "B5", booking.SlotLabel)
	bookingRepo.AssertExpectations(t)

	notifications := broadcaster.all()
	assert.Len(t, notifications, 1)
	assert.Equal(t, domain.StateReserved, notifications[0].Status)
	assert.Equal(t, domain.SourceReservation, notifications[0].Source)
}

func TestAllocate_NoFreeSlots(t *testing.T) {
	svc, bookingRepo, statusRepo, _ := allocationFixture(t)

	statusRepo.On("ClaimFirstFree", mock.Anything, domain.SourceReservation, mock.Anything).
		Return(nil, repository.ErrNotFound)

	_, err := svc.Allocate(context.Background(), 42, domain.BookingCreateDTO{VehicleNumber: "KA01AB1234"})

	assert.ErrorIs(t, err, ErrNoSlotsAvailable)
	bookingRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAllocate_ReleasesClaimWhenBookingInsertFails(t *testing.T) {
	svc, bookingRepo, statusRepo, _ := allocationFixture(t)

	slot := &domain.ParkingSlot{ID: 5, Label: "B5"}
	statusRepo.On("ClaimFirstFree", mock.Anything, domain.SourceReservation, mock.Anything).
		Return(slot, nil)
	bookingRepo.On("Create", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	// Compensating release puts the slot back to free.
	statusRepo.On("GetOrCreate", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateReserved, LastSource: domain.SourceReservation,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 5,
		[]domain.SlotState{domain.StateReserved}, domain.StateFree,
		domain.SourceCancellation, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateFree, LastSource: domain.SourceCancellation,
	}, nil)

	_, err := svc.Allocate(context.Background(), 42, domain.BookingCreateDTO{VehicleNumber: "KA01AB1234"})

	assert.Error(t, err)
	statusRepo.AssertExpectations(t)
}

func TestAllocate_RejectsStaleEta(t *testing.T) {
	svc, _, statusRepo, _ := allocationFixture(t)

	stale := time.Now().UTC().Add(-2 * time.Hour)
	_, err := svc.Allocate(context.Background(), 42, domain.BookingCreateDTO{
		VehicleNumber: "KA01AB1234",
		Eta:           stale.Format(time.RFC3339),
	})

	assert.ErrorIs(t, err, ErrValidation)
	statusRepo.AssertNotCalled(t, "ClaimFirstFree", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_FreesSlotAndMarksCancelled(t *testing.T) {
	svc, bookingRepo, statusRepo, _ := allocationFixture(t)

	bookingRepo.On("FindByID", mock.Anything, 10).Return(&domain.Booking{
		ID: 10, UserID: 42, SlotID: null.IntFrom(5), Status: domain.BookingActive,
	}, nil)
	bookingRepo.On("UpdateStatus", mock.Anything, 10, domain.BookingActive, domain.BookingCancelled).
		Return(true, nil)

	statusRepo.On("GetOrCreate", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateReserved, LastSource: domain.SourceReservation,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 5,
		[]domain.SlotState{domain.StateReserved}, domain.StateFree,
		domain.SourceCancellation, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateFree,
	}, nil)

	booking, err := svc.Cancel(context.Background(), 10, 42, false)

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, booking.Status)
	statusRepo.AssertExpectations(t)
}

func TestCancel_OtherUsersBookingForbidden(t *testing.T) {
	svc, bookingRepo, _, _ := allocationFixture(t)

	bookingRepo.On("FindByID", mock.Anything, 10).Return(&domain.Booking{
		ID: 10, UserID: 42, Status: domain.BookingActive,
	}, nil)

	_, err := svc.Cancel(context.Background(), 10, 7, false)

	assert.ErrorIs(t, err, ErrForbidden)
	bookingRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_AlreadyCompletedBooking(t *testing.T) {
	svc, bookingRepo, _, _ := allocationFixture(t)

	bookingRepo.On("FindByID", mock.Anything, 10).Return(&domain.Booking{
		ID: 10, UserID: 42, Status: domain.BookingCompleted,
	}, nil)
	bookingRepo.On("UpdateStatus", mock.Anything, 10, domain.BookingActive, domain.BookingCancelled).
		Return(false, nil)

	_, err := svc.Cancel(context.Background(), 10, 42, false)

	assert.ErrorIs(t, err, ErrBookingNotActive)
}

func TestExpireOverdueReservations_CancelsAndFrees(t *testing.T) {
	svc, bookingRepo, statusRepo, _ := allocationFixture(t)

	overdue := []domain.Booking{
		{ID: 1, SlotID: null.IntFrom(5), Status: domain.BookingActive},
		{ID: 2, SlotID: null.IntFrom(6), Status: domain.BookingActive},
	}
	bookingRepo.On("FindExpiredActive", mock.Anything, mock.Anything).Return(overdue, nil)
	bookingRepo.On("UpdateStatus", mock.Anything, 1, domain.BookingActive, domain.BookingCancelled).
		Return(true, nil)
	// Second booking raced with a cancel from the user.
	bookingRepo.On("UpdateStatus", mock.Anything, 2, domain.BookingActive, domain.BookingCancelled).
		Return(false, nil)

	statusRepo.On("GetOrCreate", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateReserved, LastSource: domain.SourceReservation,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 5,
		[]domain.SlotState{domain.StateReserved}, domain.StateFree,
		domain.SourceExpirySweep, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateFree,
	}, nil)

	count, err := svc.ExpireOverdueReservations(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	statusRepo.AssertNotCalled(t, "Transition", mock.Anything, 6,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocate_ConcurrentRequestsNeverShareASlot(t *testing.T) {
	store := newFakeSlotStatusStore(
		domain.ParkingSlot{ID: 1, Label: "A1"},
		domain.ParkingSlot{ID: 2, Label: "A2"},
		domain.ParkingSlot{ID: 3, Label: "A3"},
	)
	bookingRepo := &MockBookingRepository{}
	bookingRepo.On("Create", mock.Anything, mock.Anything).
		Return(&domain.Booking{ID: 1, Status: domain.BookingActive}, nil)
	slotRepo := &MockSlotRepository{}
	slotRepo.On("FindByID", mock.Anything, mock.Anything).Return(nil, repository.ErrNotFound).Maybe()
	broadcaster := &recordingBroadcaster{}
	reconciler := NewReconcilerService(slotRepo, store, nil, broadcaster)
	svc := NewAllocationService(bookingRepo, store, reconciler, allocationConfig())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		exhausted int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Allocate(context.Background(), 42, domain.BookingCreateDTO{
				VehicleNumber: "KA01AB1234",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrNoSlotsAvailable)
				exhausted++
				return
			}
			granted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Equal(t, 9, exhausted)

	// Every granted reservation announced a distinct slot.
	seen := map[int]bool{}
	notifications := broadcaster.all()
	assert.Len(t, notifications, 3)
	for _, n := range notifications {
		assert.Equal(t, domain.StateReserved, n.Status)
		assert.False(t, seen[n.SlotID], "slot %d was granted twice", n.SlotID)
		seen[n.SlotID] = true
	}
}
