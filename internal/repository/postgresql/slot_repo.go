package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"

	"github.com/lib/pq"
)

type pgSlotRepository struct {
	db *sql.DB
}

func NewPgSlotRepository(db *sql.DB) repository.SlotRepository {
	return &pgSlotRepository{db: db}
}

func (r *pgSlotRepository) Create(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	query := `INSERT INTO parking_slots (label, zone, max_vehicle_type, is_active, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		slot.Label, sql.NullString{String: slot.Zone, Valid: slot.Zone != ""},
		slot.MaxVehicleType, slot.IsActive,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("%w: slot label '%s' already exists", repository.ErrDuplicateEntry, slot.Label)
		}
		return nil, fmt.Errorf("SlotRepository.Create: %w", err)
	}
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgSlotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	query := `SELECT id, label, zone, max_vehicle_type, is_active, created_at, updated_at
	           FROM parking_slots WHERE id = $1`
	var zone sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&slot.ID, &slot.Label, &zone, &slot.MaxVehicleType, &slot.IsActive,
		&slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotRepository.FindByID: %w", err)
	}
	if zone.Valid {
		slot.Zone = zone.String
	}
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgSlotRepository) FindByLabel(ctx context.Context, label string) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	query := `SELECT id, label, zone, max_vehicle_type, is_active, created_at, updated_at
	           FROM parking_slots WHERE label = $1`
	var zone sql.NullString

	err := r.db.QueryRowContext(ctx, query, label).Scan(
		&slot.ID, &slot.Label, &zone, &slot.MaxVehicleType, &slot.IsActive,
		&slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotRepository.FindByLabel: %w", err)
	}
	if zone.Valid {
		slot.Zone = zone.String
	}
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

func (r *pgSlotRepository) FindAll(ctx context.Context, onlyActive bool) ([]domain.SlotView, error) {
	query := `SELECT p.id, p.label, p.zone, p.max_vehicle_type, p.is_active, p.created_at, p.updated_at,
	                 COALESCE(ss.status, 'free') AS status
	           FROM parking_slots p
	           LEFT JOIN slot_statuses ss ON ss.slot_id = p.id`
	if onlyActive {
		query += ` WHERE p.is_active`
	}
	query += ` ORDER BY p.label`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SlotRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var views []domain.SlotView
	for rows.Next() {
		var v domain.SlotView
		var zone sql.NullString
		if err := rows.Scan(
			&v.ID, &v.Label, &zone, &v.MaxVehicleType, &v.IsActive,
			&v.CreatedAt, &v.UpdatedAt, &v.Status,
		); err != nil {
			return nil, fmt.Errorf("SlotRepository.FindAll (scanning row): %w", err)
		}
		if zone.Valid {
			v.Zone = zone.String
		}
		v.CreatedAt = v.CreatedAt.In(time.UTC)
		v.UpdatedAt = v.UpdatedAt.In(time.UTC)
		views = append(views, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SlotRepository.FindAll (rows error): %w", err)
	}
	return views, nil
}

func (r *pgSlotRepository) Update(ctx context.Context, slot *domain.ParkingSlot) (*domain.ParkingSlot, error) {
	query := `UPDATE parking_slots
	           SET label = $1, zone = $2, max_vehicle_type = $3, is_active = $4, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $5
	           RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		slot.Label, sql.NullString{String: slot.Zone, Valid: slot.Zone != ""},
		slot.MaxVehicleType, slot.IsActive, slot.ID,
	).Scan(&slot.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("%w: slot label '%s' already exists", repository.ErrDuplicateEntry, slot.Label)
		}
		return nil, fmt.Errorf("SlotRepository.Update: %w", err)
	}
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}

// Delete removes the slot row. bookings.slot_id and vehicle_logs.slot_id
// carry ON DELETE SET NULL, matching the rule that bookings survive slot
// removal with a cleared assignment.
func (r *pgSlotRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM parking_slots WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("SlotRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SlotRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
