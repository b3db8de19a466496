package repository

import (
	"context"
	"errors"
	"time"

	"parkwatch/internal/domain"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicateEntry = errors.New("record already exists")
var ErrNoOpenLogEntry = errors.New("no open vehicle log entry for the given information")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

type SlotRepository interface {
	Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error)
	FindByLabel(ctx context.Context, label string) (*domain.ParkingSlot, error)
	// FindAll returns slots joined with their current status ('free' when no
	// status row exists yet), ordered by label.
	FindAll(ctx context.Context, onlyActive bool) ([]domain.SlotView, error)
	Update(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error)
	Delete(ctx context.Context, id int) error
}

type SlotStatusRepository interface {
	// GetOrCreate returns the status row for a slot, creating it as 'free'
	// on first access.
	GetOrCreate(ctx context.Context, slotID int) (*domain.SlotStatus, error)
	FindBySlotID(ctx context.Context, slotID int) (*domain.SlotStatus, error)
	// Transition conditionally moves a slot between states. It reports false
	// when the current state is not in `from`, in which case nothing was
	// written (last_update included).
	Transition(ctx context.Context, slotID int, from []domain.SlotState, to domain.SlotState, source string, at time.Time) (bool, error)
	// ClaimFirstFree atomically reserves the first free active slot (by
	// label order) and returns it. Safe under concurrent callers: each slot
	// is granted at most once. ErrNotFound when no slot is free.
	ClaimFirstFree(ctx context.Context, source string, at time.Time) (*domain.ParkingSlot, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	FindByID(ctx context.Context, id int) (*domain.Booking, error)
	FindByUser(ctx context.Context, userID int) ([]domain.Booking, error)
	// FindActiveByPlateFragment matches active bookings whose vehicle number
	// contains the fragment (case-insensitive), newest created first.
	FindActiveByPlateFragment(ctx context.Context, fragment string) (*domain.Booking, error)
	// UpdateStatus conditionally transitions booking status; false when the
	// booking was not in `from`.
	UpdateStatus(ctx context.Context, id int, from, to domain.BookingStatus) (bool, error)
	// FindExpiredActive lists active bookings whose reserved_until lies
	// before the given instant.
	FindExpiredActive(ctx context.Context, before time.Time) ([]domain.Booking, error)
}

type SensorSampleRepository interface {
	Create(ctx context.Context, sample *domain.SensorSample) error
	// FindRecent returns up to `limit` samples for (slot, sensorType),
	// newest timestamp first regardless of insertion order.
	FindRecent(ctx context.Context, slotID int, sensorType string, limit int) ([]domain.SensorSample, error)
}

type VehicleLogRepository interface {
	Create(ctx context.Context, entry *domain.VehicleLog) (*domain.VehicleLog, error)
	FindByID(ctx context.Context, id int) (*domain.VehicleLog, error)
	// FindLatestOpenByPlateFragment returns the newest entry (by entry_ts)
	// whose vehicle number contains the fragment and whose exit_ts is null.
	FindLatestOpenByPlateFragment(ctx context.Context, fragment string) (*domain.VehicleLog, error)
	// CloseEntry records the exit timestamp; ErrNotFound when the entry does
	// not exist or is already closed.
	CloseEntry(ctx context.Context, id int, exitTS time.Time) (*domain.VehicleLog, error)
	FindRecent(ctx context.Context, limit int) ([]domain.VehicleLog, error)
}
