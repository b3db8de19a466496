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

type pgBookingRepository struct {
	db *sql.DB
}

func NewPgBookingRepository(db *sql.DB) repository.BookingRepository {
	return &pgBookingRepository{db: db}
}

const bookingColumns = `b.id, b.user_id, b.slot_id, b.vehicle_number, b.eta,
	b.reserved_from, b.reserved_until, b.status, b.created_at, b.updated_at,
	COALESCE(p.label, '')`

func scanBooking(row interface{ Scan(...interface{}) error }, b *domain.Booking) error {
	if err := row.Scan(
		&b.ID, &b.UserID, &b.SlotID, &b.VehicleNumber, &b.Eta,
		&b.ReservedFrom, &b.ReservedUntil, &b.Status, &b.CreatedAt, &b.UpdatedAt,
		&b.SlotLabel,
	); err != nil {
		return err
	}
	b.ReservedFrom = b.ReservedFrom.In(time.UTC)
	b.ReservedUntil = b.ReservedUntil.In(time.UTC)
	if b.Eta.Valid {
		b.Eta.Time = b.Eta.Time.In(time.UTC)
	}
	b.CreatedAt = b.CreatedAt.In(time.UTC)
	b.UpdatedAt = b.UpdatedAt.In(time.UTC)
	return nil
}

func (r *pgBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	query := `INSERT INTO bookings
	           (user_id, slot_id, vehicle_number, eta, reserved_from, reserved_until, status, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	           RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		booking.UserID, booking.SlotID, booking.VehicleNumber, booking.Eta,
		booking.ReservedFrom.UTC(), booking.ReservedUntil.UTC(), booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("BookingRepository.Create: %w", err)
	}
	booking.CreatedAt = booking.CreatedAt.In(time.UTC)
	booking.UpdatedAt = booking.UpdatedAt.In(time.UTC)
	return booking, nil
}

func (r *pgBookingRepository) FindByID(ctx context.Context, id int) (*domain.Booking, error) {
	booking := &domain.Booking{}
	query := `SELECT ` + bookingColumns + `
	           FROM bookings b LEFT JOIN parking_slots p ON p.id = b.slot_id
	           WHERE b.id = $1`
	err := scanBooking(r.db.QueryRowContext(ctx, query, id), booking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindByID: %w", err)
	}
	return booking, nil
}

func (r *pgBookingRepository) FindByUser(ctx context.Context, userID int) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + `
	           FROM bookings b LEFT JOIN parking_slots p ON p.id = b.slot_id
	           WHERE b.user_id = $1
	           ORDER BY b.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("BookingRepository.FindByUser: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, fmt.Errorf("BookingRepository.FindByUser (scanning row): %w", err)
		}
		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("BookingRepository.FindByUser (rows error): %w", err)
	}
	return bookings, nil
}

func (r *pgBookingRepository) FindActiveByPlateFragment(ctx context.Context, fragment string) (*domain.Booking, error) {
	booking := &domain.Booking{}
	query := `SELECT ` + bookingColumns + `
	           FROM bookings b LEFT JOIN parking_slots p ON p.id = b.slot_id
	           WHERE b.status = 'active' AND b.vehicle_number ILIKE '%' || $1 || '%'
	           ORDER BY b.created_at DESC
	           LIMIT 1`
	err := scanBooking(r.db.QueryRowContext(ctx, query, fragment), booking)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("BookingRepository.FindActiveByPlateFragment: %w", err)
	}
	return booking, nil
}

func (r *pgBookingRepository) UpdateStatus(ctx context.Context, id int, from, to domain.BookingStatus) (bool, error) {
	query := `UPDATE bookings
	           SET status = $1, updated_at = CURRENT_TIMESTAMP
	           WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("BookingRepository.UpdateStatus: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("BookingRepository.UpdateStatus (checking rows affected): %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *pgBookingRepository) FindExpiredActive(ctx context.Context, before time.Time) ([]domain.Booking, error) {
	// A booking whose vehicle already arrived has its slot at 'occupied';
	// only still-reserved (unclaimed) reservations are expirable.
	query := `SELECT ` + bookingColumns + `
	           FROM bookings b
	           LEFT JOIN parking_slots p ON p.id = b.slot_id
	           LEFT JOIN slot_statuses ss ON ss.slot_id = b.slot_id
	           WHERE b.status = 'active' AND b.reserved_until < $1
	             AND (b.slot_id IS NULL OR ss.status = 'reserved')
	           ORDER BY b.reserved_until ASC`
	rows, err := r.db.QueryContext(ctx, query, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("BookingRepository.FindExpiredActive: %w", err)
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, fmt.Errorf("BookingRepository.FindExpiredActive (scanning row): %w", err)
		}
		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("BookingRepository.FindExpiredActive (rows error): %w", err)
	}
	return bookings, nil
}
