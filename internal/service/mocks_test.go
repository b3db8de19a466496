package service

import (
	"context"
	"sync"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockSlotRepository struct {
	mock.Mock
}

func (m *MockSlotRepository) Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	args := m.Called(ctx, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParkingSlot), args.Error(1)
}

func (m *MockSlotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParkingSlot), args.Error(1)
}

func (m *MockSlotRepository) FindByLabel(ctx context.Context, label string) (*domain.ParkingSlot, error) {
	args := m.Called(ctx, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParkingSlot), args.Error(1)
}

func (m *MockSlotRepository) FindAll(ctx context.Context, onlyActive bool) ([]domain.SlotView, error) {
	args := m.Called(ctx, onlyActive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SlotView), args.Error(1)
}

func (m *MockSlotRepository) Update(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	args := m.Called(ctx, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParkingSlot), args.Error(1)
}

func (m *MockSlotRepository) Delete(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSlotStatusRepository struct {
	mock.Mock
}

func (m *MockSlotStatusRepository) GetOrCreate(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotStatus), args.Error(1)
}

func (m *MockSlotStatusRepository) FindBySlotID(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotStatus), args.Error(1)
}

func (m *MockSlotStatusRepository) Transition(ctx context.Context, slotID int, from []domain.SlotState, to domain.SlotState, source string, at time.Time) (bool, error) {
	args := m.Called(ctx, slotID, from, to, source, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockSlotStatusRepository) ClaimFirstFree(ctx context.Context, source string, at time.Time) (*domain.ParkingSlot, error) {
	args := m.Called(ctx, source, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ParkingSlot), args.Error(1)
}

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	args := m.Called(ctx, booking)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindByID(ctx context.Context, id int) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindByUser(ctx context.Context, userID int) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindActiveByPlateFragment(ctx context.Context, fragment string) (*domain.Booking, error) {
	args := m.Called(ctx, fragment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id int, from, to domain.BookingStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) FindExpiredActive(ctx context.Context, before time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockSensorSampleRepository struct {
	mock.Mock
}

func (m *MockSensorSampleRepository) Create(ctx context.Context, sample *domain.SensorSample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *MockSensorSampleRepository) FindRecent(ctx context.Context, slotID int, sensorType string, limit int) ([]domain.SensorSample, error) {
	args := m.Called(ctx, slotID, sensorType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SensorSample), args.Error(1)
}

type MockVehicleLogRepository struct {
	mock.Mock
}

func (m *MockVehicleLogRepository) Create(ctx context.Context, entry *domain.VehicleLog) (*domain.VehicleLog, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VehicleLog), args.Error(1)
}

func (m *MockVehicleLogRepository) FindByID(ctx context.Context, id int) (*domain.VehicleLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VehicleLog), args.Error(1)
}

func (m *MockVehicleLogRepository) FindLatestOpenByPlateFragment(ctx context.Context, fragment string) (*domain.VehicleLog, error) {
	args := m.Called(ctx, fragment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VehicleLog), args.Error(1)
}

func (m *MockVehicleLogRepository) CloseEntry(ctx context.Context, id int, exitTS time.Time) (*domain.VehicleLog, error) {
	args := m.Called(ctx, id, exitTS)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VehicleLog), args.Error(1)
}

func (m *MockVehicleLogRepository) FindRecent(ctx context.Context, limit int) ([]domain.VehicleLog, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VehicleLog), args.Error(1)
}

// fakeSlotStatusStore is an in-memory SlotStatusRepository with the same
// conditional-update semantics as the SQL implementation. The concurrency
// tests use it where per-call mock expectations cannot express interleaving.
type fakeSlotStatusStore struct {
	mu          sync.Mutex
	slots       []domain.ParkingSlot
	statuses    map[int]*domain.SlotStatus
	transitions int
}

func newFakeSlotStatusStore(slots ...domain.ParkingSlot) *fakeSlotStatusStore {
	store := &fakeSlotStatusStore{
		slots:    slots,
		statuses: make(map[int]*domain.SlotStatus),
	}
	for _, slot := range slots {
		store.statuses[slot.ID] = &domain.SlotStatus{SlotID: slot.ID, Status: domain.StateFree}
	}
	return store
}

func (f *fakeSlotStatusStore) getLocked(slotID int) *domain.SlotStatus {
	if status, ok := f.statuses[slotID]; ok {
		return status
	}
	status := &domain.SlotStatus{SlotID: slotID, Status: domain.StateFree}
	f.statuses[slotID] = status
	return status
}

func (f *fakeSlotStatusStore) GetOrCreate(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.getLocked(slotID)
	return &copied, nil
}

func (f *fakeSlotStatusStore) FindBySlotID(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[slotID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *status
	return &copied, nil
}

func (f *fakeSlotStatusStore) Transition(ctx context.Context, slotID int, from []domain.SlotState, to domain.SlotState, source string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.getLocked(slotID)
	if status.Status == to {
		return false, nil
	}
	for _, state := range from {
		if status.Status == state {
			status.Status = to
			status.LastSource = source
			status.LastUpdate = at
			f.transitions++
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSlotStatusStore) ClaimFirstFree(ctx context.Context, source string, at time.Time) (*domain.ParkingSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, slot := range f.slots {
		status := f.getLocked(slot.ID)
		if status.Status != domain.StateFree {
			continue
		}
		status.Status = domain.StateReserved
		status.LastSource = source
		status.LastUpdate = at
		f.transitions++
		claimed := slot
		return &claimed, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSlotStatusStore) transitionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitions
}

// recordingBroadcaster collects notifications instead of pushing them to
// websocket clients.
type recordingBroadcaster struct {
	mu            sync.Mutex
	notifications []domain.SlotStatusNotification
}

func (b *recordingBroadcaster) BroadcastSlotStatus(n domain.SlotStatusNotification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, n)
}

func (b *recordingBroadcaster) all() []domain.SlotStatusNotification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.SlotStatusNotification(nil), b.notifications...)
}
