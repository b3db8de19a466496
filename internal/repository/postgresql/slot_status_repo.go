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

type pgSlotStatusRepository struct {
	db *sql.DB
}

func NewPgSlotStatusRepository(db *sql.DB) repository.SlotStatusRepository {
	return &pgSlotStatusRepository{db: db}
}

func (r *pgSlotStatusRepository) GetOrCreate(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	status := &domain.SlotStatus{}
	// ON CONFLICT DO NOTHING + fallback select keeps this race-safe without
	// clobbering an existing row.
	insert := `INSERT INTO slot_statuses (slot_id, status, last_update)
	            VALUES ($1, 'free', CURRENT_TIMESTAMP)
	            ON CONFLICT (slot_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, slotID); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotStatusRepository.GetOrCreate (insert): %w", err)
	}

	query := `SELECT id, slot_id, status, last_source, last_update
	           FROM slot_statuses WHERE slot_id = $1`
	var lastSource sql.NullString
	err := r.db.QueryRowContext(ctx, query, slotID).Scan(
		&status.ID, &status.SlotID, &status.Status, &lastSource, &status.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotStatusRepository.GetOrCreate (select): %w", err)
	}
	if lastSource.Valid {
		status.LastSource = lastSource.String
	}
	status.LastUpdate = status.LastUpdate.In(time.UTC)
	return status, nil
}

func (r *pgSlotStatusRepository) FindBySlotID(ctx context.Context, slotID int) (*domain.SlotStatus, error) {
	status := &domain.SlotStatus{}
	query := `SELECT id, slot_id, status, last_source, last_update
	           FROM slot_statuses WHERE slot_id = $1`
	var lastSource sql.NullString
	err := r.db.QueryRowContext(ctx, query, slotID).Scan(
		&status.ID, &status.SlotID, &status.Status, &lastSource, &status.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotStatusRepository.FindBySlotID: %w", err)
	}
	if lastSource.Valid {
		status.LastSource = lastSource.String
	}
	status.LastUpdate = status.LastUpdate.In(time.UTC)
	return status, nil
}

func (r *pgSlotStatusRepository) Transition(ctx context.Context, slotID int, from []domain.SlotState, to domain.SlotState, source string, at time.Time) (bool, error) {
	fromStates := make([]string, 0, len(from))
	for _, s := range from {
		fromStates = append(fromStates, string(s))
	}

	// The WHERE clause excludes the target state, so re-applying the current
	// status fires zero rows and last_update is untouched.
	query := `UPDATE slot_statuses
	           SET status = $1, last_source = $2, last_update = $3
	           WHERE slot_id = $4 AND status = ANY($5) AND status <> $1`
	result, err := r.db.ExecContext(ctx, query, to, source, at.UTC(), slotID, pq.Array(fromStates))
	if err != nil {
		return false, fmt.Errorf("SlotStatusRepository.Transition: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SlotStatusRepository.Transition (checking rows affected): %w", err)
	}
	return rowsAffected > 0, nil
}

// ClaimFirstFree grants the first free active slot to exactly one caller.
// The row lock on parking_slots serializes concurrent claims of the same
// candidate, SKIP LOCKED lets competing requests move on to the next slot,
// and the conditional upsert is the final arbiter.
func (r *pgSlotStatusRepository) ClaimFirstFree(ctx context.Context, source string, at time.Time) (*domain.ParkingSlot, error) {
	slot := &domain.ParkingSlot{}
	query := `WITH candidate AS (
	            SELECT p.id
	            FROM parking_slots p
	            LEFT JOIN slot_statuses ss ON ss.slot_id = p.id
	            WHERE p.is_active AND COALESCE(ss.status, 'free') = 'free'
	            ORDER BY p.label ASC
	            LIMIT 1
	            FOR UPDATE OF p SKIP LOCKED
	          ), claimed AS (
	            INSERT INTO slot_statuses (slot_id, status, last_source, last_update)
	            SELECT id, 'reserved', $1, $2 FROM candidate
	            ON CONFLICT (slot_id) DO UPDATE
	              SET status = 'reserved', last_source = EXCLUDED.last_source, last_update = EXCLUDED.last_update
	              WHERE slot_statuses.status = 'free'
	            RETURNING slot_id
	          )
	          SELECT p.id, p.label, p.zone, p.max_vehicle_type, p.is_active, p.created_at, p.updated_at
	          FROM parking_slots p
	          JOIN claimed c ON c.slot_id = p.id`

	var zone sql.NullString
	err := r.db.QueryRowContext(ctx, query, source, at.UTC()).Scan(
		&slot.ID, &slot.Label, &zone, &slot.MaxVehicleType, &slot.IsActive,
		&slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SlotStatusRepository.ClaimFirstFree: %w", err)
	}
	if zone.Valid {
		slot.Zone = zone.String
	}
	slot.CreatedAt = slot.CreatedAt.In(time.UTC)
	slot.UpdatedAt = slot.UpdatedAt.In(time.UTC)
	return slot, nil
}
