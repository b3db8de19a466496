package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"parkwatch/internal/config"
	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
)

// OccupancyService ingests raw distance readings and turns them into
// debounced occupancy signals. A single sample never flips a slot; the
// signal is a majority vote over the most recent window.
type OccupancyService struct {
	slotRepo   repository.SlotRepository
	sampleRepo repository.SensorSampleRepository
	reconciler *ReconcilerService

	occupiedThreshold float64
	windowSize        int
	minSamples        int
}

func NewOccupancyService(
	slotRepo repository.SlotRepository,
	sampleRepo repository.SensorSampleRepository,
	reconciler *ReconcilerService,
	cfg *config.Config,
) *OccupancyService {
	return &OccupancyService{
		slotRepo:          slotRepo,
		sampleRepo:        sampleRepo,
		reconciler:        reconciler,
		occupiedThreshold: cfg.OccupiedThreshold,
		windowSize:        cfg.DebounceWindowSize,
		minSamples:        cfg.DebounceMinSamples,
	}
}

// RecordSample stores one reading, re-evaluates the debounce window and
// feeds the outcome to the reconciler. The returned status is the slot's
// standing state after the sample, whether or not it changed anything.
func (s *OccupancyService) RecordSample(ctx context.Context, dto domain.SensorEventDTO) (*domain.SlotStatus, error) {
	slot, err := s.slotRepo.FindByID(ctx, *dto.SlotID)
	if err != nil {
		return nil, err
	}

	sensorType := dto.SensorType
	if sensorType == "" {
		sensorType = domain.DefaultSensorType
	}

	ts := time.Now().UTC()
	if dto.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, dto.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: ts must be RFC3339", ErrValidation)
		}
		ts = parsed.UTC()
	}

	sample := &domain.SensorSample{
		SlotID:     slot.ID,
		SensorType: sensorType,
		Value:      *dto.Value,
		TS:         ts,
	}
	if err := s.sampleRepo.Create(ctx, sample); err != nil {
		return nil, err
	}

	signal, err := s.evaluate(ctx, slot.ID, sensorType)
	if err != nil {
		return nil, err
	}

	if signal == domain.SignalNone {
		log.Printf("OccupancyService: slot %d (%s) below quorum, holding prior state", slot.ID, sensorType)
		return s.reconciler.Current(ctx, slot.ID)
	}

	hint := domain.StateFree
	if signal == domain.SignalOccupied {
		hint = domain.StateOccupied
	}
	return s.reconciler.Apply(ctx, slot.ID, domain.SourceSensorDebounce, hint, ts)
}

// evaluate votes over the newest window of samples for one (slot, sensor
// type) pair. Fewer samples than the quorum yields no signal at all.
func (s *OccupancyService) evaluate(ctx context.Context, slotID int, sensorType string) (domain.OccupancySignal, error) {
	samples, err := s.sampleRepo.FindRecent(ctx, slotID, sensorType, s.windowSize)
	if err != nil {
		return domain.SignalNone, err
	}
	if len(samples) < s.minSamples {
		return domain.SignalNone, nil
	}

	near := 0
	for _, sample := range samples {
		if sample.Value < s.occupiedThreshold {
			near++
		}
	}
	if near >= s.minSamples {
		return domain.SignalOccupied, nil
	}
	return domain.SignalFree, nil
}
