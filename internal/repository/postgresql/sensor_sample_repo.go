package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/lib/pq"
)

type pgSensorSampleRepository struct {
	db *sql.DB
}

func NewPgSensorSampleRepository(db *sql.DB) repository.SensorSampleRepository {
	return &pgSensorSampleRepository{db: db}
}

func (r *pgSensorSampleRepository) Create(ctx context.Context, sample *domain.SensorSample) error {
	query := `INSERT INTO sensor_samples (slot_id, sensor_type, value, ts)
	           VALUES ($1, $2, $3, $4)
	           RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		sample.SlotID, sample.SensorType, sample.Value, sample.TS.UTC(),
	).Scan(&sample.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return repository.ErrNotFound
		}
		return fmt.Errorf("SensorSampleRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSensorSampleRepository) FindRecent(ctx context.Context, slotID int, sensorType string, limit int) ([]domain.SensorSample, error) {
	query := `SELECT id, slot_id, sensor_type, value, ts
	           FROM sensor_samples
	           WHERE slot_id = $1 AND sensor_type = $2
	           ORDER BY ts DESC
	           LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, slotID, sensorType, limit)
	if err != nil {
		return nil, fmt.Errorf("SensorSampleRepository.FindRecent: %w", err)
	}
	defer rows.Close()

	var samples []domain.SensorSample
	for rows.Next() {
		var s domain.SensorSample
		if err := rows.Scan(&s.ID, &s.SlotID, &s.SensorType, &s.Value, &s.TS); err != nil {
			return nil, fmt.Errorf("SensorSampleRepository.FindRecent (scanning row): %w", err)
		}
		s.TS = s.TS.In(time.UTC)
		samples = append(samples, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SensorSampleRepository.FindRecent (rows error): %w", err)
	}
	return samples, nil
}
