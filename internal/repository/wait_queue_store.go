package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/retreat-reservation/internal/waitqueue"
)

// WaitQueueStore is the MySQL implementation of waitqueue.Store. It owns
// the wait_queues, wait_queue_places and wait_queue_place_reservations
// tables. Engine sequences run inside a single transaction with row
// locks (FOR UPDATE) on the place being worked on, so concurrent notify
// cycles or consumptions for the same place serialize at the database.
type WaitQueueStore struct {
	db *sql.DB
}

// NewWaitQueueStore returns a WaitQueueStore bound to the database.
func NewWaitQueueStore(db *sql.DB) *WaitQueueStore { return &WaitQueueStore{db: db} }

// Begin opens a transaction. *sql.Tx satisfies waitqueue.Tx directly.
func (s *WaitQueueStore) Begin(ctx context.Context) (waitqueue.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// unwrapTx recovers the *sql.Tx handed out by Begin. A foreign Tx
// implementation reaching this store is a programming error.
func unwrapTx(tx waitqueue.Tx) *sql.Tx {
	stx, ok := tx.(*sql.Tx)
	if !ok {
		panic("waitqueue tx is not *sql.Tx")
	}
	return stx
}

// RetreatTx loads the engine's retreat read model. The schedule derives
// from retreat_dates; activation guarantees at least one date exists, so
// a zero StartTime only occurs for unpublished retreats.
func (s *WaitQueueStore) RetreatTx(ctx context.Context, tx waitqueue.Tx, retreatID uint64) (waitqueue.Retreat, error) {
	const q = `SELECT r.id, r.name, r.seats, r.min_day_refund,
	       (SELECT MIN(d.starts_at) FROM retreat_dates d WHERE d.retreat_id = r.id)
	  FROM retreats r WHERE r.id = ?`
	var rt waitqueue.Retreat
	var start sql.NullTime
	err := unwrapTx(tx).QueryRowContext(ctx, q, retreatID).Scan(
		&rt.ID, &rt.Name, &rt.Seats, &rt.MinDayRefund, &start)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return waitqueue.Retreat{}, waitqueue.ErrRetreatNotFound
		}
		return waitqueue.Retreat{}, err
	}
	if start.Valid {
		rt.StartTime = start.Time
	}
	return rt, nil
}

// PlaceForUpdateTx loads a place and locks its row until the transaction
// ends, serializing concurrent notify cycles for the same place.
func (s *WaitQueueStore) PlaceForUpdateTx(ctx context.Context, tx waitqueue.Tx, placeID uint64) (waitqueue.Place, error) {
	const q = `SELECT id, retreat_id, cancelled_by, available, created_at
	             FROM wait_queue_places WHERE id = ? FOR UPDATE`
	var p waitqueue.Place
	err := unwrapTx(tx).QueryRowContext(ctx, q, placeID).Scan(
		&p.ID, &p.RetreatID, &p.CancelledBy, &p.Available, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return waitqueue.Place{}, waitqueue.ErrPlaceNotFound
		}
		return waitqueue.Place{}, err
	}
	return p, nil
}

// CandidatesTx returns the FIFO candidate pool for a place: unused
// tickets of the place's retreat, excluding users who already hold an
// unused claim on this specific place, ordered by ticket creation time.
func (s *WaitQueueStore) CandidatesTx(ctx context.Context, tx waitqueue.Tx, placeID uint64) ([]waitqueue.Candidate, error) {
	const q = `SELECT w.id, w.user_id, u.email, u.first_name, u.last_name, w.created_at
	  FROM wait_queues w
	  JOIN users u ON u.id = w.user_id
	  JOIN wait_queue_places p ON p.id = ?
	 WHERE w.retreat_id = p.retreat_id AND w.used = 0
	   AND NOT EXISTS (
	       SELECT 1 FROM wait_queue_place_reservations pr
	        WHERE pr.wait_queue_place_id = p.id AND pr.user_id = w.user_id AND pr.used = 0)
	 ORDER BY w.created_at ASC, w.id ASC`
	rows, err := unwrapTx(tx).QueryContext(ctx, q, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []waitqueue.Candidate
	for rows.Next() {
		var c waitqueue.Candidate
		if err := rows.Scan(&c.TicketID, &c.UserID, &c.Email, &c.FirstName, &c.LastName, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UserAlreadyNotifiedTx reports whether the user holds an unused,
// notified claim on any currently available place of the retreat.
func (s *WaitQueueStore) UserAlreadyNotifiedTx(ctx context.Context, tx waitqueue.Tx, retreatID, userID uint64) (bool, error) {
	const q = `SELECT EXISTS (
	  SELECT 1 FROM wait_queue_place_reservations pr
	  JOIN wait_queue_places p ON p.id = pr.wait_queue_place_id
	 WHERE p.retreat_id = ? AND p.available = 1
	   AND pr.user_id = ? AND pr.used = 0 AND pr.notified = 1)`
	var exists bool
	if err := unwrapTx(tx).QueryRowContext(ctx, q, retreatID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateReservedTx layers a claim row for (place, user). Rows are never
// deleted; the notified/used flags carry the state.
func (s *WaitQueueStore) CreateReservedTx(ctx context.Context, tx waitqueue.Tx, placeID, userID uint64) (uint64, error) {
	res, err := unwrapTx(tx).ExecContext(ctx,
		`INSERT INTO wait_queue_place_reservations (wait_queue_place_id, user_id) VALUES (?, ?)`,
		placeID, userID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// MarkReservedNotifiedTx flips the notified flag on a claim row.
func (s *WaitQueueStore) MarkReservedNotifiedTx(ctx context.Context, tx waitqueue.Tx, reservedID uint64) error {
	_, err := unwrapTx(tx).ExecContext(ctx,
		`UPDATE wait_queue_place_reservations SET notified = 1 WHERE id = ?`, reservedID)
	return err
}

// FirstReservedPlaceTx finds the place whose claim the user's booking
// consumes: the earliest-created unused claim on an available place.
// The row lock extends to the place via the join.
func (s *WaitQueueStore) FirstReservedPlaceTx(ctx context.Context, tx waitqueue.Tx, retreatID, userID uint64) (uint64, bool, error) {
	const q = `SELECT pr.wait_queue_place_id
	  FROM wait_queue_place_reservations pr
	  JOIN wait_queue_places p ON p.id = pr.wait_queue_place_id
	 WHERE p.retreat_id = ? AND p.available = 1 AND pr.user_id = ? AND pr.used = 0
	 ORDER BY pr.created_at ASC, pr.id ASC
	 LIMIT 1 FOR UPDATE`
	var placeID uint64
	err := unwrapTx(tx).QueryRowContext(ctx, q, retreatID, userID).Scan(&placeID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return placeID, true, nil
}

// MarkUserReservedUsedTx spends every unused claim the user holds across
// all places of the retreat. This is the fan-out that prevents one user
// from claiming two freed seats.
func (s *WaitQueueStore) MarkUserReservedUsedTx(ctx context.Context, tx waitqueue.Tx, retreatID, userID uint64) error {
	const q = `UPDATE wait_queue_place_reservations pr
	  JOIN wait_queue_places p ON p.id = pr.wait_queue_place_id
	   SET pr.used = 1
	 WHERE p.retreat_id = ? AND pr.user_id = ? AND pr.used = 0`
	_, err := unwrapTx(tx).ExecContext(ctx, q, retreatID, userID)
	return err
}

// MarkPlaceUnavailableTx closes a place's notification cycle. Terminal.
func (s *WaitQueueStore) MarkPlaceUnavailableTx(ctx context.Context, tx waitqueue.Tx, placeID uint64) error {
	_, err := unwrapTx(tx).ExecContext(ctx,
		`UPDATE wait_queue_places SET available = 0 WHERE id = ?`, placeID)
	return err
}

// MarkTicketsUsedTx spends the user's wait-queue tickets for the retreat.
func (s *WaitQueueStore) MarkTicketsUsedTx(ctx context.Context, tx waitqueue.Tx, retreatID, userID uint64) error {
	_, err := unwrapTx(tx).ExecContext(ctx,
		`UPDATE wait_queues SET used = 1 WHERE retreat_id = ? AND user_id = ?`, retreatID, userID)
	return err
}

// CreatePlace opens a notification cycle for one freed seat.
func (s *WaitQueueStore) CreatePlace(ctx context.Context, retreatID, cancelledBy uint64) (waitqueue.Place, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wait_queue_places (retreat_id, cancelled_by, available) VALUES (?, ?, 1)`,
		retreatID, cancelledBy)
	if err != nil {
		return waitqueue.Place{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return waitqueue.Place{}, err
	}
	var p waitqueue.Place
	err = s.db.QueryRowContext(ctx,
		`SELECT id, retreat_id, cancelled_by, available, created_at FROM wait_queue_places WHERE id = ?`,
		id).Scan(&p.ID, &p.RetreatID, &p.CancelledBy, &p.Available, &p.CreatedAt)
	if err != nil {
		return waitqueue.Place{}, err
	}
	return p, nil
}

// CreateTicket inserts a wait-queue ticket. The (retreat_id, user_id)
// unique key maps MySQL duplicate errors to ErrAlreadyQueued.
func (s *WaitQueueStore) CreateTicket(ctx context.Context, retreatID, userID uint64) (waitqueue.Ticket, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wait_queues (retreat_id, user_id) VALUES (?, ?)`, retreatID, userID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return waitqueue.Ticket{}, waitqueue.ErrAlreadyQueued
		}
		return waitqueue.Ticket{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return waitqueue.Ticket{}, err
	}
	var t waitqueue.Ticket
	err = s.db.QueryRowContext(ctx,
		`SELECT id, retreat_id, user_id, used, created_at FROM wait_queues WHERE id = ?`,
		id).Scan(&t.ID, &t.RetreatID, &t.UserID, &t.Used, &t.CreatedAt)
	if err != nil {
		return waitqueue.Ticket{}, err
	}
	return t, nil
}

// DeleteTicket removes the user's ticket for the retreat.
func (s *WaitQueueStore) DeleteTicket(ctx context.Context, retreatID, userID uint64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wait_queues WHERE retreat_id = ? AND user_id = ?`, retreatID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return waitqueue.ErrTicketNotFound
	}
	return nil
}

// SeatCounts gathers the related-row counts seat accounting derives
// from. Reads run outside a transaction: places_remaining is a pure read
// recomputed per call, and callers needing write consistency take locks
// through the engine's transactional paths instead.
func (s *WaitQueueStore) SeatCounts(ctx context.Context, retreatID uint64) (waitqueue.SeatCounts, error) {
	var c waitqueue.SeatCounts
	err := s.db.QueryRowContext(ctx, `SELECT seats FROM retreats WHERE id = ?`, retreatID).Scan(&c.Seats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return waitqueue.SeatCounts{}, waitqueue.ErrRetreatNotFound
		}
		return waitqueue.SeatCounts{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE retreat_id = ? AND is_active = 1`,
		retreatID).Scan(&c.ActiveReservations); err != nil {
		return waitqueue.SeatCounts{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wait_queue_places WHERE retreat_id = ? AND available = 1`,
		retreatID).Scan(&c.AvailablePlaces); err != nil {
		return waitqueue.SeatCounts{}, err
	}
	// Seats still ring-fenced by reserve-seat invitations: each
	// invitation holds nb_places minus the active reservations already
	// booked through it, floored at zero per invitation.
	const invQ = `SELECT COALESCE(SUM(GREATEST(i.nb_places - (
	        SELECT COUNT(*) FROM reservations res
	         WHERE res.invitation_id = i.id AND res.is_active = 1), 0)), 0)
	  FROM retreat_invitations i
	 WHERE i.retreat_id = ? AND i.reserve_seat = 1`
	if err := s.db.QueryRowContext(ctx, invQ, retreatID).Scan(&c.ReservedInvitationSeats); err != nil {
		return waitqueue.SeatCounts{}, err
	}
	return c, nil
}

// TicketInfo is a user's wait-queue ticket joined with retreat context
// and the current FIFO position among unused tickets.
type TicketInfo struct {
	RetreatID   uint64    `json:"retreat_id"`
	RetreatName string    `json:"retreat_name"`
	Position    int       `json:"position"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTicketsByUser returns the user's tickets across all retreats with
// their live queue positions. Position counts unused tickets created
// earlier, so it shifts forward as the queue drains.
func (s *WaitQueueStore) ListTicketsByUser(ctx context.Context, userID uint64) ([]TicketInfo, error) {
	const q = `SELECT w.retreat_id, r.name, w.used, w.created_at,
	       (SELECT COUNT(*) + 1 FROM wait_queues w2
	         WHERE w2.retreat_id = w.retreat_id AND w2.used = 0
	           AND (w2.created_at < w.created_at OR (w2.created_at = w.created_at AND w2.id < w.id)))
	  FROM wait_queues w
	  JOIN retreats r ON r.id = w.retreat_id
	 WHERE w.user_id = ?
	 ORDER BY w.created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []TicketInfo{}
	for rows.Next() {
		var t TicketInfo
		if err := rows.Scan(&t.RetreatID, &t.RetreatName, &t.Used, &t.CreatedAt, &t.Position); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PlaceInfo summarizes one place's notification cycle for operators.
type PlaceInfo struct {
	ID            uint64    `json:"id"`
	Available     bool      `json:"available"`
	CancelledBy   uint64    `json:"cancelled_by"`
	ClaimsLayered int       `json:"claims_layered"`
	Notified      int       `json:"notified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListPlacesByRetreat returns every place of a retreat, oldest first,
// with claim counts so operators can see how far each cycle has walked.
func (s *WaitQueueStore) ListPlacesByRetreat(ctx context.Context, retreatID uint64) ([]PlaceInfo, error) {
	const q = `SELECT p.id, p.available, p.cancelled_by, p.created_at,
	       (SELECT COUNT(*) FROM wait_queue_place_reservations pr WHERE pr.wait_queue_place_id = p.id),
	       (SELECT COUNT(*) FROM wait_queue_place_reservations pr WHERE pr.wait_queue_place_id = p.id AND pr.notified = 1)
	  FROM wait_queue_places p
	 WHERE p.retreat_id = ?
	 ORDER BY p.created_at ASC, p.id ASC`
	rows, err := s.db.QueryContext(ctx, q, retreatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []PlaceInfo{}
	for rows.Next() {
		var p PlaceInfo
		if err := rows.Scan(&p.ID, &p.Available, &p.CancelledBy, &p.CreatedAt, &p.ClaimsLayered, &p.Notified); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
