// Package repository contains data access logic for retreat operations.
// This file defines the Retreat record and repository methods for
// retreats, their dates and reserve-seat invitations. A retreat's start
// and end times are not stored on the retreats row; they derive from the
// earliest and latest associated retreat_dates rows.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel definitions
	"strings"      // strings builds dynamic search predicates
	"time"         // time for schedule fields
)

// Retreat mirrors the 'retreats' table plus the derived schedule.
// StartTime/EndTime are zero when the retreat has no dates yet; such a
// retreat cannot be activated.
type Retreat struct {
	ID           uint64    // retreats.id
	Name         string    // retreats.name
	Details      string    // retreats.details, free-form description
	Seats        int       // retreats.seats, total capacity
	MinDayRefund int       // retreats.min_day_refund, days before start when refunds close
	IsActive     bool      // retreats.is_active, inactive retreats are hidden from browse
	StartTime    time.Time // MIN(retreat_dates.starts_at), zero when no dates
	EndTime      time.Time // MAX(retreat_dates.ends_at), zero when no dates
	CreatedAt    time.Time // retreats.created_at
	UpdatedAt    time.Time // retreats.updated_at
}

// Invitation mirrors the 'retreat_invitations' table. Invitations with
// ReserveSeat set ring-fence NbPlaces seats out of general availability
// until reservations made through the invitation consume them.
type Invitation struct {
	ID          uint64    // retreat_invitations.id
	RetreatID   uint64    // retreat_invitations.retreat_id
	Name        string    // retreat_invitations.name, label shown to invitees
	NbPlaces    int       // retreat_invitations.nb_places
	ReserveSeat bool      // retreat_invitations.reserve_seat
	CreatedAt   time.Time // retreat_invitations.created_at
}

// ErrRetreatNotFound indicates that a retreat was not located in the DB.
var ErrRetreatNotFound = errors.New("retreat not found")

// ErrRetreatIncomplete indicates an activation attempt on a retreat that
// is missing required fields (name, positive seat count, at least one
// date). Handlers translate this into an HTTP 400 response.
var ErrRetreatIncomplete = errors.New("retreat is missing required fields")

// RetreatRepo manages persistence for retreats.
type RetreatRepo struct {
	db *sql.DB
}

// NewRetreatRepo constructs a RetreatRepo with the given DB handle.
func NewRetreatRepo(db *sql.DB) *RetreatRepo {
	return &RetreatRepo{db: db}
}

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *RetreatRepo) DB() *sql.DB {
	return r.db
}

// retreatSelect derives the schedule with a correlated subquery per
// bound; retreats with no dates yield NULLs which scan into NullTime.
const retreatSelect = `SELECT r.id, r.name, r.details, r.seats, r.min_day_refund, r.is_active,
       (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id),
       (SELECT MAX(d.ends_at) FROM retreat_dates d WHERE d.retreat_id = r.id),
       r.created_at, r.updated_at
  FROM retreats r`

func scanRetreat(row interface{ Scan(...any) error }) (Retreat, error) {
	var rt Retreat
	var start, end sql.NullTime
	err := row.Scan(&rt.ID, &rt.Name, &rt.Details, &rt.Seats, &rt.MinDayRefund, &rt.IsActive,
		&start, &end, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return Retreat{}, err
	}
	if start.Valid {
		rt.StartTime = start.Time
	}
	if end.Valid {
		rt.EndTime = end.Time
	}
	return rt, nil
}

// Create inserts a new retreat and assigns the generated ID back to the
// struct.  Retreats are created inactive; Activate publishes them once
// the required fields are in place.
func (r *RetreatRepo) Create(ctx context.Context, rt *Retreat) error {
	const q = `INSERT INTO retreats (name, details, seats, min_day_refund) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rt.Name, rt.Details, rt.Seats, rt.MinDayRefund)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	got, err := r.GetByID(ctx, rt.ID)
	if err != nil {
		return err
	}
	*rt = *got
	return nil
}

// GetByID retrieves a retreat by its ID.  It returns ErrRetreatNotFound
// if there is no matching row.
func (r *RetreatRepo) GetByID(ctx context.Context, id uint64) (*Retreat, error) {
	rt, err := scanRetreat(r.db.QueryRowContext(ctx, retreatSelect+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRetreatNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// ListActive returns all active retreats ordered by their start time
// ascending; retreats without dates sort last.  Used by public browse.
func (r *RetreatRepo) ListActive(ctx context.Context) ([]Retreat, error) {
	const q = retreatSelect + ` WHERE r.is_active = 1
	 ORDER BY (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id) IS NULL,
	          (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id) ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Retreat
	for rows.Next() {
		rt, err := scanRetreat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AddDate attaches a date block to a retreat.  Activation requires at
// least one date because the wait-queue refund deadline derives from the
// earliest start.
func (r *RetreatRepo) AddDate(ctx context.Context, retreatID uint64, startsAt, endsAt time.Time) (uint64, error) {
	if _, err := r.GetByID(ctx, retreatID); err != nil {
		return 0, err
	}
	const q = `INSERT INTO retreat_dates (retreat_id, starts_at, ends_at) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, retreatID, startsAt.UTC(), endsAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Activate marks a retreat active after validating required fields.  An
// incomplete retreat (empty name, non-positive seats, negative refund
// window or no dates) returns ErrRetreatIncomplete and remains inactive.
func (r *RetreatRepo) Activate(ctx context.Context, id uint64) error {
	rt, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rt.Name) == "" || rt.Seats <= 0 || rt.MinDayRefund < 0 || rt.StartTime.IsZero() {
		return ErrRetreatIncomplete
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE retreats SET is_active = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// CreateInvitation inserts a reserve-seat invitation for a retreat and
// assigns the generated ID back to the struct.
func (r *RetreatRepo) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if _, err := r.GetByID(ctx, inv.RetreatID); err != nil {
		return err
	}
	const q = `INSERT INTO retreat_invitations (retreat_id, name, nb_places, reserve_seat) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, inv.RetreatID, inv.Name, inv.NbPlaces, inv.ReserveSeat)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = uint64(id)
	return nil
}

// RetreatSearchQuery defines filters & pagination for searching retreats.
type RetreatSearchQuery struct {
	Name       string
	TimeFilter string // "upcoming" (default), "active", "any"
	Page       int
	PageSize   int
}

// PublicRetreatRow is a sanitized retreat row for public search results.
type PublicRetreatRow struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Seats     int       `json:"seats"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// SearchUpcoming returns active retreats matching the query along with
// the total match count for pagination.  Retreats without dates never
// match the default "upcoming" filter.
func (r *RetreatRepo) SearchUpcoming(ctx context.Context, q RetreatSearchQuery) ([]PublicRetreatRow, int64, error) {
	where := []string{"r.is_active = 1"}
	args := []any{}

	switch strings.ToLower(q.TimeFilter) {
	case "any":
	case "active":
		where = append(where, "(SELECT MAX(d.ends_at) FROM retreat_dates d WHERE d.retreat_id = r.id) >= NOW()")
	default:
		where = append(where, "(SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id) >= NOW()")
	}
	if q.Name != "" {
		where = append(where, "LOWER(r.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Name)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retreats r WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 || size > 100 {
		size = 20
	}
	sel := `SELECT r.id, r.name, r.seats,
	       (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id),
	       (SELECT MAX(d.ends_at) FROM retreat_dates d WHERE d.retreat_id = r.id)
	  FROM retreats r WHERE ` + cond + `
	 ORDER BY (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id) ASC
	 LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, sel, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []PublicRetreatRow
	for rows.Next() {
		var row PublicRetreatRow
		var start, end sql.NullTime
		if err := rows.Scan(&row.ID, &row.Name, &row.Seats, &start, &end); err != nil {
			return nil, 0, err
		}
		if start.Valid {
			row.StartTime = start.Time
		}
		if end.Valid {
			row.EndTime = end.Time
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
