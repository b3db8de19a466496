package service

import (
	"context"
	"testing"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gopkg.in/guregu/null.v4"
)

func vehicleFixture(t *testing.T) (*VehicleEventService, *MockBookingRepository, *MockVehicleLogRepository, *MockSlotRepository, *MockSlotStatusRepository) {
	t.Helper()
	bookingRepo := &MockBookingRepository{}
	logRepo := &MockVehicleLogRepository{}
	slotRepo := &MockSlotRepository{}
	statusRepo := &MockSlotStatusRepository{}
	reconciler := NewReconcilerService(slotRepo, statusRepo, nil, nil)
	svc := NewVehicleEventService(bookingRepo, logRepo, slotRepo, reconciler, nil, nil, t.TempDir())
	return svc, bookingRepo, logRepo, slotRepo, statusRepo
}

func expectOccupy(statusRepo *MockSlotStatusRepository, slotID int) {
	statusRepo.On("GetOrCreate", mock.Anything, slotID).Return(&domain.SlotStatus{
		SlotID: slotID, Status: domain.StateReserved, LastSource: domain.SourceReservation,
	}, nil)
	statusRepo.On("Transition", mock.Anything, slotID,
		[]domain.SlotState{domain.StateFree, domain.StateReserved}, domain.StateOccupied,
		domain.SourceVehicleEntry, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, slotID).Return(&domain.SlotStatus{
		SlotID: slotID, Status: domain.StateOccupied, LastSource: domain.SourceVehicleEntry,
	}, nil)
}

func TestRecordEntry_MatchesBookingAndOccupiesItsSlot(t *testing.T) {
	svc, bookingRepo, logRepo, slotRepo, statusRepo := vehicleFixture(t)

	booking := &domain.Booking{
		ID: 10, UserID: 42, SlotID: null.IntFrom(5),
		VehicleNumber: "KA01AB1234", Status: domain.BookingActive,
	}
	bookingRepo.On("FindActiveByPlateFragment", mock.Anything, "KA01AB1234").Return(booking, nil)

	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VehicleLog) bool {
		return v.VehicleNumber == "KA01AB1234" &&
			v.BookingID.Valid && v.BookingID.Int64 == 10 &&
			!v.SlotID.Valid
	})).Return(&domain.VehicleLog{
		ID: 1, VehicleNumber: "KA01AB1234", BookingID: null.IntFrom(10),
	}, nil)

	expectOccupy(statusRepo, 5)
	slotRepo.On("FindByID", mock.Anything, 5).Return(&domain.ParkingSlot{ID: 5, Label: "B5"}, nil).Maybe()

	entry, err := svc.RecordEntry(context.Background(), domain.VehicleEntryDTO{
		PlateText: "ka 01 ab 1234",
	})

	assert.NoError(t, err)
	assert.Equal(t, "KA01AB1234", entry.VehicleNumber)
	statusRepo.AssertExpectations(t)
}

func TestRecordEntry_BookingSlotWinsOverDetectionSlot(t *testing.T) {
	svc, bookingRepo, logRepo, slotRepo, statusRepo := vehicleFixture(t)

	booking := &domain.Booking{ID: 10, SlotID: null.IntFrom(5), Status: domain.BookingActive}
	bookingRepo.On("FindActiveByPlateFragment", mock.Anything, "KA01AB1234").Return(booking, nil)

	// Camera saw the vehicle near slot 8; the log keeps that, the state
	// change goes to the booked slot.
	slotRepo.On("FindByID", mock.Anything, 8).Return(&domain.ParkingSlot{ID: 8, Label: "C8"}, nil)
	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VehicleLog) bool {
		return v.SlotID.Valid && v.SlotID.Int64 == 8
	})).Return(&domain.VehicleLog{
		ID: 2, VehicleNumber: "KA01AB1234", SlotID: null.IntFrom(8), BookingID: null.IntFrom(10),
	}, nil)

	expectOccupy(statusRepo, 5)
	slotRepo.On("FindByID", mock.Anything, 5).Return(&domain.ParkingSlot{ID: 5, Label: "B5"}, nil).Maybe()

	detectionSlot := 8
	_, err := svc.RecordEntry(context.Background(), domain.VehicleEntryDTO{
		PlateText: "KA01AB1234",
		SlotID:    &detectionSlot,
	})

	assert.NoError(t, err)
	statusRepo.AssertNotCalled(t, "Transition", mock.Anything, 8,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordEntry_DetectionSlotUsedWhenBookingLostItsSlot(t *testing.T) {
	svc, bookingRepo, logRepo, slotRepo, statusRepo := vehicleFixture(t)

	// Slot was deleted after booking; slot_id cleared but booking stays
	// active. The camera's detection slot still gets occupied.
	booking := &domain.Booking{ID: 10, SlotID: null.Int{}, Status: domain.BookingActive}
	bookingRepo.On("FindActiveByPlateFragment", mock.Anything, "KA01AB1234").Return(booking, nil)
	slotRepo.On("FindByID", mock.Anything, 8).Return(&domain.ParkingSlot{ID: 8, Label: "C8"}, nil)

	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VehicleLog) bool {
		return v.BookingID.Valid && v.BookingID.Int64 == 10 &&
			v.SlotID.Valid && v.SlotID.Int64 == 8
	})).Return(&domain.VehicleLog{
		ID: 5, VehicleNumber: "KA01AB1234", SlotID: null.IntFrom(8), BookingID: null.IntFrom(10),
	}, nil)

	statusRepo.On("GetOrCreate", mock.Anything, 8).Return(&domain.SlotStatus{
		SlotID: 8, Status: domain.StateFree,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 8,
		[]domain.SlotState{domain.StateFree, domain.StateReserved}, domain.StateOccupied,
		domain.SourceVehicleEntry, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 8).Return(&domain.SlotStatus{
		SlotID: 8, Status: domain.StateOccupied,
	}, nil)

	detectionSlot := 8
	_, err := svc.RecordEntry(context.Background(), domain.VehicleEntryDTO{
		PlateText: "KA01AB1234",
		SlotID:    &detectionSlot,
	})

	assert.NoError(t, err)
	statusRepo.AssertExpectations(t)
}

func TestRecordEntry_NoPlateLogsUnknownVehicle(t *testing.T) {
	svc, bookingRepo, logRepo, _, statusRepo := vehicleFixture(t)

	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VehicleLog) bool {
		return v.VehicleNumber == domain.UnknownVehicle && !v.OcrText.Valid
	})).Return(&domain.VehicleLog{ID: 3, VehicleNumber: domain.UnknownVehicle}, nil)

	entry, err := svc.RecordEntry(context.Background(), domain.VehicleEntryDTO{})

	assert.NoError(t, err)
	assert.Equal(t, domain.UnknownVehicle, entry.VehicleNumber)
	bookingRepo.AssertNotCalled(t, "FindActiveByPlateFragment", mock.Anything, mock.Anything)
	statusRepo.AssertNotCalled(t, "Transition",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordEntry_WalkInWithoutBookingStillRecorded(t *testing.T) {
	svc, bookingRepo, logRepo, slotRepo, statusRepo := vehicleFixture(t)

	bookingRepo.On("FindActiveByPlateFragment", mock.Anything, "MH12DE1433").
		Return(nil, repository.ErrNotFound)
	slotRepo.On("FindByID", mock.Anything, 8).Return(&domain.ParkingSlot{ID: 8, Label: "C8"}, nil)

	logRepo.On("Create", mock.Anything, mock.MatchedBy(func(v *domain.VehicleLog) bool {
		return v.VehicleNumber == "MH12DE1433" && !v.BookingID.Valid
	})).Return(&domain.VehicleLog{
		ID: 4, VehicleNumber: "MH12DE1433", SlotID: null.IntFrom(8),
	}, nil)

	// Walk-in with a known detection slot occupies that slot.
	statusRepo.On("GetOrCreate", mock.Anything, 8).Return(&domain.SlotStatus{
		SlotID: 8, Status: domain.StateFree,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 8,
		[]domain.SlotState{domain.StateFree, domain.StateReserved}, domain.StateOccupied,
		domain.SourceVehicleEntry, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 8).Return(&domain.SlotStatus{
		SlotID: 8, Status: domain.StateOccupied,
	}, nil)

	detectionSlot := 8
	_, err := svc.RecordEntry(context.Background(), domain.VehicleEntryDTO{
		PlateText: "MH12DE1433",
		SlotID:    &detectionSlot,
	})

	assert.NoError(t, err)
	statusRepo.AssertExpectations(t)
}

func TestRecordExit_ByPlateFreesSlotAndCompletesBooking(t *testing.T) {
	svc, bookingRepo, logRepo, slotRepo, statusRepo := vehicleFixture(t)

	open := &domain.VehicleLog{
		ID: 7, VehicleNumber: "KA01AB1234", SlotID: null.IntFrom(5),
		BookingID: null.IntFrom(10), EntryTS: time.Now().UTC().Add(-time.Hour),
	}
	logRepo.On("FindLatestOpenByPlateFragment", mock.Anything, "KA01AB1234").Return(open, nil)
	logRepo.On("CloseEntry", mock.Anything, 7, mock.Anything).Return(&domain.VehicleLog{
		ID: 7, VehicleNumber: "KA01AB1234", SlotID: null.IntFrom(5),
		BookingID: null.IntFrom(10), ExitTS: null.TimeFrom(time.Now().UTC()),
	}, nil)

	statusRepo.On("GetOrCreate", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateOccupied, LastSource: domain.SourceVehicleEntry,
	}, nil)
	statusRepo.On("Transition", mock.Anything, 5,
		[]domain.SlotState{domain.StateOccupied}, domain.StateFree,
		domain.SourceVehicleExit, mock.Anything).Return(true, nil)
	statusRepo.On("FindBySlotID", mock.Anything, 5).Return(&domain.SlotStatus{
		SlotID: 5, Status: domain.StateFree,
	}, nil)
	slotRepo.On("FindByID", mock.Anything, 5).Return(&domain.ParkingSlot{ID: 5, Label: "B5"}, nil).Maybe()

	bookingRepo.On("UpdateStatus", mock.Anything, 10, domain.BookingActive, domain.BookingCompleted).
		Return(true, nil)

	closed, err := svc.RecordExit(context.Background(), domain.VehicleExitDTO{
		PlateText: "KA01AB1234",
	})

	assert.NoError(t, err)
	assert.True(t, closed.ExitTS.Valid)
	bookingRepo.AssertExpectations(t)
	statusRepo.AssertExpectations(t)
}

func TestRecordExit_AlreadyClosedEntry(t *testing.T) {
	svc, _, logRepo, _, _ := vehicleFixture(t)

	already := &domain.VehicleLog{ID: 7, ExitTS: null.TimeFrom(time.Now().UTC())}
	logRepo.On("FindByID", mock.Anything, 7).Return(already, nil)
	logRepo.On("CloseEntry", mock.Anything, 7, mock.Anything).Return(nil, repository.ErrNotFound)

	logID := 7
	_, err := svc.RecordExit(context.Background(), domain.VehicleExitDTO{VehicleLogID: &logID})

	assert.ErrorIs(t, err, repository.ErrNoOpenLogEntry)
}

func TestRecordExit_NeedsPlateOrLogID(t *testing.T) {
	svc, _, logRepo, _, _ := vehicleFixture(t)

	_, err := svc.RecordExit(context.Background(), domain.VehicleExitDTO{})

	assert.ErrorIs(t, err, ErrValidation)
	logRepo.AssertNotCalled(t, "CloseEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordExit_NoOpenEntryForPlate(t *testing.T) {
	svc, _, logRepo, _, _ := vehicleFixture(t)

	logRepo.On("FindLatestOpenByPlateFragment", mock.Anything, "DL8CAF5030").
		Return(nil, repository.ErrNoOpenLogEntry)

	_, err := svc.RecordExit(context.Background(), domain.VehicleExitDTO{PlateText: "DL8CAF5030"})

	assert.ErrorIs(t, err, repository.ErrNoOpenLogEntry)
}
