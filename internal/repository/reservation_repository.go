package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Reservation mirrors the 'reservations' table. A reservation is never
// deleted: cancellation flips IsActive off and records when and why, so
// the seat math and the audit trail stay consistent.
type Reservation struct {
	ID           uint64     // reservations.id
	RetreatID    uint64     // reservations.retreat_id
	UserID       uint64     // reservations.user_id
	InvitationID *uint64    // reservations.invitation_id (nullable, set when booked through an invitation)
	IsActive     bool       // reservations.is_active
	CancelReason *string    // reservations.cancel_reason (nullable)
	CancelledAt  *time.Time // reservations.cancelled_at (nullable)
	CreatedAt    time.Time  // reservations.created_at
	UpdatedAt    time.Time  // reservations.updated_at
}

// ReservationDetail joins a reservation with its retreat for listing.
type ReservationDetail struct {
	ID          uint64    `json:"id"`
	RetreatID   uint64    `json:"retreat_id"`
	RetreatName string    `json:"retreat_name"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrReservationNotFound indicates no matching reservation row.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrAlreadyReserved indicates the user already holds an active
// reservation for the retreat.
var ErrAlreadyReserved = errors.New("user already has an active reservation")

// ReservationRepo manages persistence for reservations.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo constructs a ReservationRepo bound to the database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying sql.DB for callers that need to begin
// transactions spanning multiple repositories.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// Create inserts an active reservation.  A user may hold at most one
// active reservation per retreat; a second attempt returns
// ErrAlreadyReserved.  The uniqueness check and the insert run in the
// caller's transaction so concurrent bookings cannot slip between them.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *Reservation) error {
	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE retreat_id = ? AND user_id = ? AND is_active = 1`,
		res.RetreatID, res.UserID).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return ErrAlreadyReserved
	}
	out, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (retreat_id, user_id, invitation_id, is_active) VALUES (?, ?, ?, 1)`,
		res.RetreatID, res.UserID, res.InvitationID)
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.IsActive = true
	return nil
}

// GetForUpdateTx loads a reservation row and locks it for the duration
// of the transaction.  Ownership is checked here so that handlers can
// distinguish 404 from 403: ErrReservationNotFound when no row exists,
// ErrForbidden when it belongs to another user.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id, userID uint64) (Reservation, error) {
	const q = `SELECT id, retreat_id, user_id, invitation_id, is_active, cancel_reason, cancelled_at, created_at, updated_at
	             FROM reservations WHERE id = ? FOR UPDATE`
	var res Reservation
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&res.ID, &res.RetreatID, &res.UserID, &res.InvitationID,
		&res.IsActive, &res.CancelReason, &res.CancelledAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	if res.UserID != userID {
		return Reservation{}, ErrForbidden
	}
	return res, nil
}

// CancelTx deactivates a reservation, recording the reason and time.
// The caller decides whether cancellation is allowed (retreat not
// started); a row that is no longer active returns ErrConflict.
func (r *ReservationRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64, reason string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET is_active = 0, cancel_reason = ?, cancelled_at = UTC_TIMESTAMP(), updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND is_active = 1`,
		reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ListByUser returns the user's reservations, newest first, joined with
// retreat name and derived schedule.  When no reservations exist it
// returns an empty slice and nil error.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]ReservationDetail, error) {
	const q = `SELECT res.id, res.retreat_id, rt.name,
	       (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = rt.id),
	       (SELECT MAX(d.ends_at) FROM retreat_dates d WHERE d.retreat_id = rt.id),
	       res.is_active, res.created_at
	  FROM reservations res
	  JOIN retreats rt ON rt.id = res.retreat_id
	 WHERE res.user_id = ?
	 ORDER BY res.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []ReservationDetail{}
	for rows.Next() {
		var d ReservationDetail
		var start, end sql.NullTime
		if err := rows.Scan(&d.ID, &d.RetreatID, &d.RetreatName, &start, &end, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		if start.Valid {
			d.StartTime = start.Time
		}
		if end.Valid {
			d.EndTime = end.Time
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
