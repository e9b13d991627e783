// Package waitqueue implements the wait-queue engine for full retreats.
// When a reservation is cancelled, the freed seat becomes a "place" that
// runs its own notification cycle: waiting users are offered the seat in
// FIFO order, one at a time while refunds are still possible (drip) and
// all at once after the refund deadline (burst).  The engine operates on
// an explicit Store interface so that persistence, time and notification
// delivery are all injected collaborators.
package waitqueue

import (
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations and surfaced through
// the engine.  Handlers translate them into HTTP status codes.
var (
	// ErrRetreatNotFound indicates the retreat does not exist.
	ErrRetreatNotFound = errors.New("retreat not found")
	// ErrPlaceNotFound indicates the wait queue place does not exist.
	ErrPlaceNotFound = errors.New("wait queue place not found")
	// ErrAlreadyQueued indicates the user already holds a ticket for the
	// retreat.  The (user, retreat) pair is unique.
	ErrAlreadyQueued = errors.New("user already in wait queue")
	// ErrTicketNotFound indicates the user has no ticket for the retreat.
	ErrTicketNotFound = errors.New("wait queue ticket not found")
)

// Retreat is the read model the engine needs from the retreats table:
// capacity, schedule and the refund policy that gates the notification
// speed.  Everything else about a retreat is handled elsewhere.
type Retreat struct {
	ID           uint64    // retreats.id
	Name         string    // retreats.name, used in notification context
	Seats        int       // retreats.seats, total capacity
	MinDayRefund int       // retreats.min_day_refund, days before start when refunds close
	StartTime    time.Time // start of the first retreat date (UTC)
}

// RefundDeadline returns the instant after which cancellations are no
// longer refundable: StartTime minus MinDayRefund days.  Before this
// instant the engine notifies candidates one per call; at or after it,
// every remaining candidate is notified in a single pass.
func (r Retreat) RefundDeadline() time.Time {
	return r.StartTime.Add(-time.Duration(r.MinDayRefund) * 24 * time.Hour)
}

// Ticket is one user's standing in a retreat's wait queue.  Ordering is
// by CreatedAt ascending; the Used flag flips once the user consumes a
// reserved seat and is never cleared.
type Ticket struct {
	ID        uint64    // wait_queues.id
	RetreatID uint64    // wait_queues.retreat_id
	UserID    uint64    // wait_queues.user_id
	Used      bool      // wait_queues.used
	CreatedAt time.Time // wait_queues.created_at, FIFO key
}

// Place is one seat freed by a cancellation.  Each place owns an
// independent notification cycle.  Available flips to false exactly once,
// when a waiting user actually claims the seat; that state is terminal.
type Place struct {
	ID          uint64    // wait_queue_places.id
	RetreatID   uint64    // wait_queue_places.retreat_id
	CancelledBy uint64    // wait_queue_places.cancelled_by, user whose cancellation freed the seat
	Available   bool      // wait_queue_places.available
	CreatedAt   time.Time // wait_queue_places.created_at
}

// Reserved records that a user has been given first refusal on a specific
// place.  Rows are layered rather than deleted: a place accumulates one
// row per candidate visited by Notify, and the Used/Notified flags plus
// flag-filtered queries determine current state.
type Reserved struct {
	ID        uint64    // wait_queue_place_reservations.id
	PlaceID   uint64    // wait_queue_place_reservations.wait_queue_place_id
	UserID    uint64    // wait_queue_place_reservations.user_id
	Notified  bool      // wait_queue_place_reservations.notified
	Used      bool      // wait_queue_place_reservations.used
	CreatedAt time.Time // wait_queue_place_reservations.created_at
}

// Candidate is a wait-queue ticket joined with the identity needed to
// send the reserved-seat notification.
type Candidate struct {
	TicketID  uint64    // wait_queues.id
	UserID    uint64    // users.id
	Email     string    // users.email
	FirstName string    // users.first_name
	LastName  string    // users.last_name
	CreatedAt time.Time // ticket creation time, FIFO key
}

// SeatCounts aggregates the related-row counts that seat accounting is
// derived from.  It is recomputed from the database on every read, so it
// reflects committed state at call time but offers no protection against
// writes between read and use; callers needing that wrap the read in the
// same transaction as the write.
type SeatCounts struct {
	Seats                  int // retreat capacity
	ActiveReservations     int // reservations with is_active = 1
	AvailablePlaces        int // wait queue places still cycling through candidates
	ReservedInvitationSeats int // seats ring-fenced for reserve-seat invitations
}

// Remaining returns capacity minus every category of spoken-for seat,
// clamped at zero.
func (s SeatCounts) Remaining() int {
	n := s.Seats - s.ActiveReservations - s.AvailablePlaces - s.ReservedInvitationSeats
	if n < 0 {
		return 0
	}
	return n
}
