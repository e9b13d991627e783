package waitqueue

import (
	"context"
	"fmt"
	"log"
)

// Messages returned with Stop=true when a notify cycle cannot proceed.
// These are business-stop conditions, not errors: pollers must branch on
// the Stop flag and cease calling Notify for the place.
const (
	MsgPlaceUnavailable = "wait queue place not available"
	MsgRetreatStarted   = "retreat already started"
)

// NotifyResult is the outcome of one notify cycle.  Either Emails lists
// the addresses notified during the cycle (possibly empty when every
// candidate already held an offer elsewhere), or Message carries a
// terminal condition with Stop set.
type NotifyResult struct {
	Emails  []string `json:"emails,omitempty"`
	Message string   `json:"message,omitempty"`
	Stop    bool     `json:"stop"`
}

// Engine coordinates wait-queue state transitions.  All methods are safe
// for concurrent use; mutating sequences run inside a store transaction
// with row locks on the place being worked on.
type Engine struct {
	store    Store
	notifier Notifier
	clock    Clock
}

// NewEngine constructs an Engine.  store and notifier must be non-nil; a
// nil clock defaults to SystemClock.
func NewEngine(store Store, notifier Notifier, clock Clock) *Engine {
	if store == nil || notifier == nil {
		panic("nil dependency passed to NewEngine")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{store: store, notifier: notifier, clock: clock}
}

// Notify runs one notification cycle for a place.  It walks the FIFO
// candidate pool and records a Reserved row for every candidate visited.
// A candidate who does not already hold an unused, notified offer on
// another available place of the retreat is sent the reserved-seat
// notification and their new row is marked notified.
//
// Before the retreat's refund deadline the cycle stops after the first
// newly notified candidate, giving each user an exclusive window while a
// refund could still free the seat again.  At or after the deadline the
// cycle notifies every remaining candidate in one pass to maximize the
// last-minute fill rate.
//
// Terminal conditions (place already claimed, retreat already started)
// are reported through the result's Message/Stop pair rather than an
// error; the error return is reserved for store failures.
func (e *Engine) Notify(ctx context.Context, placeID uint64) (NotifyResult, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return NotifyResult{}, fmt.Errorf("begin notify tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	place, err := e.store.PlaceForUpdateTx(ctx, tx, placeID)
	if err != nil {
		return NotifyResult{}, err
	}
	if !place.Available {
		return NotifyResult{Message: MsgPlaceUnavailable, Stop: true}, nil
	}
	retreat, err := e.store.RetreatTx(ctx, tx, place.RetreatID)
	if err != nil {
		return NotifyResult{}, err
	}
	now := e.clock.Now()
	if !now.Before(retreat.StartTime) {
		return NotifyResult{Message: MsgRetreatStarted, Stop: true}, nil
	}
	// Burst once refunds are closed: no reason to hold seats back one at
	// a time when a cancellation can no longer be undone.
	burst := !now.Before(retreat.RefundDeadline())

	candidates, err := e.store.CandidatesTx(ctx, tx, placeID)
	if err != nil {
		return NotifyResult{}, err
	}

	var emails []string
	for _, cand := range candidates {
		already, err := e.store.UserAlreadyNotifiedTx(ctx, tx, place.RetreatID, cand.UserID)
		if err != nil {
			return NotifyResult{}, err
		}
		// The Reserved row is layered for every visited candidate, even
		// one holding an offer elsewhere, so that a later cycle on this
		// place skips them without re-walking their history.
		reservedID, err := e.store.CreateReservedTx(ctx, tx, placeID, cand.UserID)
		if err != nil {
			return NotifyResult{}, err
		}
		if already {
			continue
		}
		if err := e.notifier.SeatReserved(ctx, cand, retreat); err != nil {
			// Fire-and-forget: delivery failures are not retried here and
			// do not unwind the offer.
			log.Printf("waitqueue: seat reserved notification for %s failed: %v", cand.Email, err)
		}
		if err := e.store.MarkReservedNotifiedTx(ctx, tx, reservedID); err != nil {
			return NotifyResult{}, err
		}
		emails = append(emails, cand.Email)
		if !burst {
			break
		}
	}

	if err := tx.Commit(); err != nil {
		return NotifyResult{}, fmt.Errorf("commit notify tx: %w", err)
	}
	committed = true
	return NotifyResult{Emails: emails}, nil
}

// UseReservedPlace consumes the user's standing in the retreat's wait
// queue when they actually book a seat.  It marks every unused Reserved
// row the user holds across all of the retreat's places as used, marks
// their tickets used, and disables the single place their claim is
// consumed from (the first one by offer creation order).  Other places
// the user had offers on stay available: their seats are still free and
// their cycles move on to the next candidate.
//
// The call is an idempotent no-op when the user has no outstanding
// claim; consumed reports whether a place was actually taken.
func (e *Engine) UseReservedPlace(ctx context.Context, retreatID, userID uint64) (consumed bool, err error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin consume tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	placeID, ok, err := e.store.FirstReservedPlaceTx(ctx, tx, retreatID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := e.store.MarkUserReservedUsedTx(ctx, tx, retreatID, userID); err != nil {
		return false, err
	}
	if err := e.store.MarkPlaceUnavailableTx(ctx, tx, placeID); err != nil {
		return false, err
	}
	if err := e.store.MarkTicketsUsedTx(ctx, tx, retreatID, userID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit consume tx: %w", err)
	}
	committed = true
	return true, nil
}

// AddPlace opens a notification cycle for one freed seat.  Called when a
// reservation on the retreat is cancelled; cancelledBy records the user
// whose cancellation freed the seat, for audit.
func (e *Engine) AddPlace(ctx context.Context, retreatID, cancelledBy uint64) (Place, error) {
	return e.store.CreatePlace(ctx, retreatID, cancelledBy)
}

// Subscribe adds the user to the retreat's wait queue.  The (user,
// retreat) pair is unique; a second subscription returns
// ErrAlreadyQueued.
func (e *Engine) Subscribe(ctx context.Context, retreatID, userID uint64) (Ticket, error) {
	return e.store.CreateTicket(ctx, retreatID, userID)
}

// Unsubscribe removes the user's ticket for the retreat.
func (e *Engine) Unsubscribe(ctx context.Context, retreatID, userID uint64) error {
	return e.store.DeleteTicket(ctx, retreatID, userID)
}

// PlacesRemaining recomputes the retreat's free capacity: seats minus
// active reservations, minus places still held open for the wait queue,
// minus seats ring-fenced for reserve-seat invitations, never negative.
// It is a pure read with no caching; the value reflects committed state
// at call time.
func (e *Engine) PlacesRemaining(ctx context.Context, retreatID uint64) (int, error) {
	counts, err := e.store.SeatCounts(ctx, retreatID)
	if err != nil {
		return 0, err
	}
	return counts.Remaining(), nil
}
