package service

import (
	"context"
	"log"

	"parkwatch/internal/cache"
	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
)

// SlotService covers slot administration and the public availability board.
// The board is served read-through from Redis; the cache entry is dropped
// whenever the reconciler applies a transition or an admin edits the slot
// set, so a stale board lives at most one TTL.
type SlotService struct {
	slotRepo repository.SlotRepository
	cache    *cache.RedisCache
}

func NewSlotService(slotRepo repository.SlotRepository, redisCache *cache.RedisCache) *SlotService {
	return &SlotService{slotRepo: slotRepo, cache: redisCache}
}

// Board returns active slots with their current status, label order.
func (s *SlotService) Board(ctx context.Context) ([]domain.SlotView, error) {
	if s.cache != nil {
		views, err := s.cache.GetSlotBoard(ctx)
		if err != nil {
			log.Printf("SlotService: slot board cache read failed: %v", err)
		} else if views != nil {
			return views, nil
		}
	}

	views, err := s.slotRepo.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetSlotBoard(ctx, views); err != nil {
			log.Printf("SlotService: slot board cache write failed: %v", err)
		}
	}
	return views, nil
}

// ListAll returns every slot, inactive ones included, for administration.
func (s *SlotService) ListAll(ctx context.Context) ([]domain.SlotView, error) {
	return s.slotRepo.FindAll(ctx, false)
}

func (s *SlotService) Get(ctx context.Context, id int) (*domain.ParkingSlot, error) {
	return s.slotRepo.FindByID(ctx, id)
}

func (s *SlotService) Create(ctx context.Context, dto domain.ParkingSlotDTO) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{
		Label:          dto.Label,
		Zone:           dto.Zone,
		MaxVehicleType: dto.MaxVehicleType,
		IsActive:       true,
	}
	if slot.MaxVehicleType == "" {
		slot.MaxVehicleType = "car"
	}
	if dto.IsActive != nil {
		slot.IsActive = *dto.IsActive
	}

	created, err := s.slotRepo.Create(ctx, slot)
	if err != nil {
		return nil, err
	}
	s.invalidateBoard(ctx)
	return created, nil
}

func (s *SlotService) Update(ctx context.Context, id int, dto domain.ParkingSlotDTO) (*domain.ParkingSlot, error) {
	slot, err := s.slotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	slot.Label = dto.Label
	slot.Zone = dto.Zone
	if dto.MaxVehicleType != "" {
		slot.MaxVehicleType = dto.MaxVehicleType
	}
	if dto.IsActive != nil {
		slot.IsActive = *dto.IsActive
	}

	updated, err := s.slotRepo.Update(ctx, slot)
	if err != nil {
		return nil, err
	}
	s.invalidateBoard(ctx)
	return updated, nil
}

func (s *SlotService) Delete(ctx context.Context, id int) error {
	if err := s.slotRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateBoard(ctx)
	return nil
}

func (s *SlotService) invalidateBoard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSlotBoard(ctx); err != nil {
		log.Printf("SlotService: slot board invalidation failed: %v", err)
	}
}
