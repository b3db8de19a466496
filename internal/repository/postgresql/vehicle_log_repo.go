package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parkwatch/internal/domain"
	"parkwatch/internal/repository"
)

type pgVehicleLogRepository struct {
	db *sql.DB
}

func NewPgVehicleLogRepository(db *sql.DB) repository.VehicleLogRepository {
	return &pgVehicleLogRepository{db: db}
}

const vehicleLogColumns = `id, vehicle_number, slot_id, entry_ts, exit_ts, booking_id, plate_image, ocr_text, created_at`

func scanVehicleLog(row interface{ Scan(...interface{}) error }, v *domain.VehicleLog) error {
	if err := row.Scan(
		&v.ID, &v.VehicleNumber, &v.SlotID, &v.EntryTS, &v.ExitTS,
		&v.BookingID, &v.PlateImage, &v.OcrText, &v.CreatedAt,
	); err != nil {
		return err
	}
	v.EntryTS = v.EntryTS.In(time.UTC)
	if v.ExitTS.Valid {
		v.ExitTS.Time = v.ExitTS.Time.In(time.UTC)
	}
	v.CreatedAt = v.CreatedAt.In(time.UTC)
	return nil
}

func (r *pgVehicleLogRepository) Create(ctx context.Context, entry *domain.VehicleLog) (*domain.VehicleLog, error) {
	query := `INSERT INTO vehicle_logs
	           (vehicle_number, slot_id, entry_ts, booking_id, plate_image, ocr_text, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
	           RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		entry.VehicleNumber, entry.SlotID, entry.EntryTS.UTC(),
		entry.BookingID, entry.PlateImage, entry.OcrText,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("VehicleLogRepository.Create: %w", err)
	}
	entry.CreatedAt = entry.CreatedAt.In(time.UTC)
	return entry, nil
}

func (r *pgVehicleLogRepository) FindByID(ctx context.Context, id int) (*domain.VehicleLog, error) {
	entry := &domain.VehicleLog{}
	query := `SELECT ` + vehicleLogColumns + ` FROM vehicle_logs WHERE id = $1`
	err := scanVehicleLog(r.db.QueryRowContext(ctx, query, id), entry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("VehicleLogRepository.FindByID: %w", err)
	}
	return entry, nil
}

func (r *pgVehicleLogRepository) FindLatestOpenByPlateFragment(ctx context.Context, fragment string) (*domain.VehicleLog, error) {
	entry := &domain.VehicleLog{}
	query := `SELECT ` + vehicleLogColumns + `
	           FROM vehicle_logs
	           WHERE exit_ts IS NULL AND vehicle_number ILIKE '%' || $1 || '%'
	           ORDER BY entry_ts DESC
	           LIMIT 1`
	err := scanVehicleLog(r.db.QueryRowContext(ctx, query, fragment), entry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoOpenLogEntry
		}
		return nil, fmt.Errorf("VehicleLogRepository.FindLatestOpenByPlateFragment: %w", err)
	}
	return entry, nil
}

func (r *pgVehicleLogRepository) CloseEntry(ctx context.Context, id int, exitTS time.Time) (*domain.VehicleLog, error) {
	entry := &domain.VehicleLog{}
	// exit_ts IS NULL in the WHERE keeps the entry write-once.
	query := `UPDATE vehicle_logs
	           SET exit_ts = $1
	           WHERE id = $2 AND exit_ts IS NULL
	           RETURNING ` + vehicleLogColumns
	err := scanVehicleLog(r.db.QueryRowContext(ctx, query, exitTS.UTC(), id), entry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("VehicleLogRepository.CloseEntry: %w", err)
	}
	return entry, nil
}

func (r *pgVehicleLogRepository) FindRecent(ctx context.Context, limit int) ([]domain.VehicleLog, error) {
	query := `SELECT ` + vehicleLogColumns + `
	           FROM vehicle_logs
	           ORDER BY entry_ts DESC
	           LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("VehicleLogRepository.FindRecent: %w", err)
	}
	defer rows.Close()

	var entries []domain.VehicleLog
	for rows.Next() {
		var v domain.VehicleLog
		if err := scanVehicleLog(rows, &v); err != nil {
			return nil, fmt.Errorf("VehicleLogRepository.FindRecent (scanning row): %w", err)
		}
		entries = append(entries, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("VehicleLogRepository.FindRecent (rows error): %w", err)
	}
	return entries, nil
}
