package waitqueue

import "context"

// Tx represents a unit of work spanning several store operations.  It
// keeps the engine independent of database/sql: the SQL store hands out
// *sql.Tx (which satisfies this interface directly) while tests hand out
// a no-op.  Every engine operation that reads then writes runs inside a
// single Tx so that concurrent Notify or consumption calls for the same
// place serialize at the store rather than racing.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store is the persistence contract the engine operates on.  Methods with
// a Tx parameter participate in the caller's transaction; the remaining
// methods are single-statement operations.  Implementations must make
// PlaceForUpdateTx and FirstReservedPlaceTx acquire row locks so that the
// read-modify-write sequences in Notify and UseReservedPlace are
// serialized per place.
type Store interface {
	// Begin opens a new transaction.
	Begin(ctx context.Context) (Tx, error)

	// RetreatTx loads the retreat read model.  Returns ErrRetreatNotFound
	// when no row matches.
	RetreatTx(ctx context.Context, tx Tx, retreatID uint64) (Retreat, error)

	// PlaceForUpdateTx loads a place and locks its row for the duration
	// of the transaction.  Returns ErrPlaceNotFound when no row matches.
	PlaceForUpdateTx(ctx context.Context, tx Tx, placeID uint64) (Place, error)

	// CandidatesTx returns the FIFO candidate pool for a place: unused
	// tickets of the place's retreat whose user does not already hold an
	// unused Reserved row on this specific place, ordered by ticket
	// creation time ascending.
	CandidatesTx(ctx context.Context, tx Tx, placeID uint64) ([]Candidate, error)

	// UserAlreadyNotifiedTx reports whether the user holds an unused,
	// notified Reserved row on any currently available place of the
	// retreat.  Such users keep their first offer; Notify records a
	// Reserved row for them but does not send a second email.
	UserAlreadyNotifiedTx(ctx context.Context, tx Tx, retreatID, userID uint64) (bool, error)

	// CreateReservedTx inserts a Reserved row for (place, user) with
	// notified and used both false, returning its ID.
	CreateReservedTx(ctx context.Context, tx Tx, placeID, userID uint64) (uint64, error)

	// MarkReservedNotifiedTx flips a Reserved row's notified flag.
	MarkReservedNotifiedTx(ctx context.Context, tx Tx, reservedID uint64) error

	// FirstReservedPlaceTx returns the ID of the first available place
	// (by Reserved creation order) on which the user holds an unused
	// Reserved row, locking the matching rows.  ok is false when the user
	// has no outstanding claim.
	FirstReservedPlaceTx(ctx context.Context, tx Tx, retreatID, userID uint64) (placeID uint64, ok bool, err error)

	// MarkUserReservedUsedTx flips used on every unused Reserved row the
	// user holds across all places of the retreat.
	MarkUserReservedUsedTx(ctx context.Context, tx Tx, retreatID, userID uint64) error

	// MarkPlaceUnavailableTx flips a place's available flag to false.
	MarkPlaceUnavailableTx(ctx context.Context, tx Tx, placeID uint64) error

	// MarkTicketsUsedTx flips used on the user's tickets for the retreat.
	MarkTicketsUsedTx(ctx context.Context, tx Tx, retreatID, userID uint64) error

	// CreatePlace inserts an available place for the retreat, recording
	// the user whose cancellation freed the seat.
	CreatePlace(ctx context.Context, retreatID, cancelledBy uint64) (Place, error)

	// CreateTicket inserts a wait-queue ticket.  Returns ErrAlreadyQueued
	// when the (user, retreat) pair already exists.
	CreateTicket(ctx context.Context, retreatID, userID uint64) (Ticket, error)

	// DeleteTicket removes the user's ticket for the retreat.  Returns
	// ErrTicketNotFound when no row was removed.
	DeleteTicket(ctx context.Context, retreatID, userID uint64) error

	// SeatCounts returns the related-row counts seat accounting derives
	// from, read outside any transaction.
	SeatCounts(ctx context.Context, retreatID uint64) (SeatCounts, error)
}

// Notifier delivers the reserved-seat notification.  The engine treats
// delivery as fire-and-forget: a failed send is logged by the
// implementation and does not roll back the Reserved row, matching the
// at-most-once semantics of the email collaborator.
type Notifier interface {
	SeatReserved(ctx context.Context, to Candidate, retreat Retreat) error
}
