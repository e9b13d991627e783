package waitqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a constant instant; tests advance it by reassigning.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// memTx satisfies Tx with no-op commit/rollback.  The in-memory store
// mutates state directly, which is fine for exercising engine logic.
type memTx struct{}

func (memTx) Commit() error   { return nil }
func (memTx) Rollback() error { return nil }

// memStore is an in-memory Store used to drive the engine in tests.
type memStore struct {
	mu        sync.Mutex
	retreats  map[uint64]Retreat
	users     map[uint64]Candidate // identity keyed by user ID
	tickets   []*Ticket
	places    map[uint64]*Place
	reserved  []*Reserved
	active    map[uint64]int // retreatID -> active reservations
	invSeats  map[uint64]int // retreatID -> reserve-seat invitation seats
	nextID    uint64
	createdAt time.Time
}

func newMemStore() *memStore {
	return &memStore{
		retreats:  map[uint64]Retreat{},
		users:     map[uint64]Candidate{},
		places:    map[uint64]*Place{},
		active:    map[uint64]int{},
		invSeats:  map[uint64]int{},
		nextID:    1,
		createdAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) id() uint64 { id := s.nextID; s.nextID++; return id }

// tick returns a strictly increasing timestamp for FIFO ordering.
func (s *memStore) tick() time.Time {
	s.createdAt = s.createdAt.Add(time.Second)
	return s.createdAt
}

func (s *memStore) addUser(id uint64) {
	s.users[id] = Candidate{
		UserID:    id,
		Email:     fmt.Sprintf("user%d@example.com", id),
		FirstName: fmt.Sprintf("First%d", id),
		LastName:  fmt.Sprintf("Last%d", id),
	}
}

func (s *memStore) Begin(ctx context.Context) (Tx, error) { return memTx{}, nil }

func (s *memStore) RetreatTx(ctx context.Context, tx Tx, retreatID uint64) (Retreat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.retreats[retreatID]
	if !ok {
		return Retreat{}, ErrRetreatNotFound
	}
	return r, nil
}

func (s *memStore) PlaceForUpdateTx(ctx context.Context, tx Tx, placeID uint64) (Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[placeID]
	if !ok {
		return Place{}, ErrPlaceNotFound
	}
	return *p, nil
}

func (s *memStore) CandidatesTx(ctx context.Context, tx Tx, placeID uint64) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	place, ok := s.places[placeID]
	if !ok {
		return nil, ErrPlaceNotFound
	}
	var out []Candidate
	for _, t := range s.tickets {
		if t.RetreatID != place.RetreatID || t.Used {
			continue
		}
		blocked := false
		for _, r := range s.reserved {
			if r.PlaceID == placeID && r.UserID == t.UserID && !r.Used {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		c := s.users[t.UserID]
		c.TicketID = t.ID
		c.CreatedAt = t.CreatedAt
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) UserAlreadyNotifiedTx(ctx context.Context, tx Tx, retreatID, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reserved {
		if r.UserID != userID || r.Used || !r.Notified {
			continue
		}
		p := s.places[r.PlaceID]
		if p != nil && p.RetreatID == retreatID && p.Available {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateReservedTx(ctx context.Context, tx Tx, placeID, userID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Reserved{ID: s.id(), PlaceID: placeID, UserID: userID, CreatedAt: s.tick()}
	s.reserved = append(s.reserved, r)
	return r.ID, nil
}

func (s *memStore) MarkReservedNotifiedTx(ctx context.Context, tx Tx, reservedID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reserved {
		if r.ID == reservedID {
			r.Notified = true
			return nil
		}
	}
	return fmt.Errorf("reserved %d not found", reservedID)
}

func (s *memStore) FirstReservedPlaceTx(ctx context.Context, tx Tx, retreatID, userID uint64) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Reserved
	for _, r := range s.reserved {
		if r.UserID != userID || r.Used {
			continue
		}
		p := s.places[r.PlaceID]
		if p == nil || p.RetreatID != retreatID || !p.Available {
			continue
		}
		if best == nil || r.CreatedAt.Before(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return 0, false, nil
	}
	return best.PlaceID, true, nil
}

func (s *memStore) MarkUserReservedUsedTx(ctx context.Context, tx Tx, retreatID, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reserved {
		if r.UserID != userID || r.Used {
			continue
		}
		if p := s.places[r.PlaceID]; p != nil && p.RetreatID == retreatID {
			r.Used = true
		}
	}
	return nil
}

func (s *memStore) MarkPlaceUnavailableTx(ctx context.Context, tx Tx, placeID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.places[placeID]; ok {
		p.Available = false
		return nil
	}
	return ErrPlaceNotFound
}

func (s *memStore) MarkTicketsUsedTx(ctx context.Context, tx Tx, retreatID, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.RetreatID == retreatID && t.UserID == userID {
			t.Used = true
		}
	}
	return nil
}

func (s *memStore) CreatePlace(ctx context.Context, retreatID, cancelledBy uint64) (Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &Place{ID: s.id(), RetreatID: retreatID, CancelledBy: cancelledBy, Available: true, CreatedAt: s.tick()}
	s.places[p.ID] = p
	return *p, nil
}

func (s *memStore) CreateTicket(ctx context.Context, retreatID, userID uint64) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.RetreatID == retreatID && t.UserID == userID {
			return Ticket{}, ErrAlreadyQueued
		}
	}
	t := &Ticket{ID: s.id(), RetreatID: retreatID, UserID: userID, CreatedAt: s.tick()}
	s.tickets = append(s.tickets, t)
	return *t, nil
}

func (s *memStore) DeleteTicket(ctx context.Context, retreatID, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tickets {
		if t.RetreatID == retreatID && t.UserID == userID {
			s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)
			return nil
		}
	}
	return ErrTicketNotFound
}

func (s *memStore) SeatCounts(ctx context.Context, retreatID uint64) (SeatCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.retreats[retreatID]
	if !ok {
		return SeatCounts{}, ErrRetreatNotFound
	}
	available := 0
	for _, p := range s.places {
		if p.RetreatID == retreatID && p.Available {
			available++
		}
	}
	return SeatCounts{
		Seats:                   r.Seats,
		ActiveReservations:      s.active[retreatID],
		AvailablePlaces:         available,
		ReservedInvitationSeats: s.invSeats[retreatID],
	}, nil
}

// fakeNotifier records every delivered notification.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *fakeNotifier) SeatReserved(ctx context.Context, to Candidate, r Retreat) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("smtp unreachable")
	}
	n.sent = append(n.sent, to.Email)
	return nil
}

// fixture builds a retreat with capacity seats and n queued users (IDs
// 1..n, queued in ID order) starting 30 days after the clock's origin.
func fixture(t *testing.T, seats, queued int) (*memStore, *fakeNotifier, *fixedClock, *Engine, Retreat) {
	t.Helper()
	store := newMemStore()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	retreat := Retreat{
		ID:           10,
		Name:         "Spring Yoga Retreat",
		Seats:        seats,
		MinDayRefund: 7,
		StartTime:    clock.now.Add(30 * 24 * time.Hour),
	}
	store.retreats[retreat.ID] = retreat
	for i := 1; i <= queued; i++ {
		uid := uint64(i)
		store.addUser(uid)
		_, err := store.CreateTicket(context.Background(), retreat.ID, uid)
		require.NoError(t, err)
	}
	notifier := &fakeNotifier{}
	return store, notifier, clock, NewEngine(store, notifier, clock), retreat
}

func TestNotifyDripOnePerCall(t *testing.T) {
	store, notifier, _, engine, retreat := fixture(t, 6, 6)
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)

	res, err := engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	assert.False(t, res.Stop)
	assert.Equal(t, []string{"user1@example.com"}, res.Emails)

	res, err = engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user2@example.com"}, res.Emails)

	// Only the first two candidates were contacted.
	assert.Equal(t, []string{"user1@example.com", "user2@example.com"}, notifier.sent)

	notified := 0
	for _, r := range store.reserved {
		if r.Notified {
			notified++
		}
	}
	assert.Equal(t, 2, notified)
}

func TestNotifyBurstAfterRefundDeadline(t *testing.T) {
	_, notifier, clock, engine, retreat := fixture(t, 6, 6)
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)

	// Two drip cycles first, then jump the clock to exactly the deadline.
	_, err = engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	_, err = engine.Notify(ctx, place.ID)
	require.NoError(t, err)

	clock.now = retreat.RefundDeadline()

	res, err := engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	assert.False(t, res.Stop)
	assert.Equal(t, []string{
		"user3@example.com", "user4@example.com",
		"user5@example.com", "user6@example.com",
	}, res.Emails)
	assert.Len(t, notifier.sent, 6)
}

func TestNotifyAfterRetreatStarted(t *testing.T) {
	store, _, clock, engine, retreat := fixture(t, 6, 3)
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)

	clock.now = retreat.StartTime
	res, err := engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	assert.True(t, res.Stop)
	assert.Equal(t, MsgRetreatStarted, res.Message)
	assert.Empty(t, store.reserved, "no reservations may be created once the retreat started")
}

func TestNotifyUnavailablePlace(t *testing.T) {
	_, _, _, engine, retreat := fixture(t, 6, 3)
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	// First candidate claims the seat, disabling the place.
	_, err = engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	consumed, err := engine.UseReservedPlace(ctx, retreat.ID, 1)
	require.NoError(t, err)
	require.True(t, consumed)

	res, err := engine.Notify(ctx, place.ID)
	require.NoError(t, err)
	assert.True(t, res.Stop)
	assert.Equal(t, MsgPlaceUnavailable, res.Message)
}

func TestNotifySkipsUserAlreadyNotifiedElsewhere(t *testing.T) {
	store, notifier, _, engine, retreat := fixture(t, 6, 2)
	ctx := context.Background()

	p1, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	p2, err := engine.AddPlace(ctx, retreat.ID, 98)
	require.NoError(t, err)

	// user1 gets the offer on p1.
	res, err := engine.Notify(ctx, p1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"user1@example.com"}, res.Emails)

	// On p2 user1 is still first in FIFO order, but already holds a live
	// offer: a Reserved row is layered without an email and the cycle
	// moves on to user2.
	res, err = engine.Notify(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user2@example.com"}, res.Emails)
	assert.Equal(t, []string{"user1@example.com", "user2@example.com"}, notifier.sent)

	var u1OnP2 *Reserved
	for _, r := range store.reserved {
		if r.PlaceID == p2.ID && r.UserID == 1 {
			u1OnP2 = r
		}
	}
	require.NotNil(t, u1OnP2, "a Reserved row must be layered for the skipped candidate")
	assert.False(t, u1OnP2.Notified)
}

func TestUseReservedPlaceFanOut(t *testing.T) {
	store, _, _, engine, retreat := fixture(t, 6, 3)
	ctx := context.Background()

	p1, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	p2, err := engine.AddPlace(ctx, retreat.ID, 98)
	require.NoError(t, err)

	// user1 ends up with offers on both places: notified on p1, layered
	// on p2, then user2 notified on p2.
	_, err = engine.Notify(ctx, p1.ID)
	require.NoError(t, err)
	_, err = engine.Notify(ctx, p2.ID)
	require.NoError(t, err)

	consumed, err := engine.UseReservedPlace(ctx, retreat.ID, 1)
	require.NoError(t, err)
	assert.True(t, consumed)

	// Every Reserved row user1 held is now used, on both places.
	for _, r := range store.reserved {
		if r.UserID == 1 {
			assert.True(t, r.Used, "reserved row on place %d must be used", r.PlaceID)
		}
	}
	// Only the first place the claim was consumed from is disabled.
	assert.False(t, store.places[p1.ID].Available)
	assert.True(t, store.places[p2.ID].Available)
	// The ticket is spent.
	for _, tk := range store.tickets {
		if tk.UserID == 1 {
			assert.True(t, tk.Used)
		}
	}
}

func TestUseReservedPlaceIdempotent(t *testing.T) {
	_, _, _, engine, retreat := fixture(t, 6, 2)
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	_, err = engine.Notify(ctx, place.ID)
	require.NoError(t, err)

	consumed, err := engine.UseReservedPlace(ctx, retreat.ID, 1)
	require.NoError(t, err)
	assert.True(t, consumed)

	// Second call finds nothing outstanding and changes nothing.
	consumed, err = engine.UseReservedPlace(ctx, retreat.ID, 1)
	require.NoError(t, err)
	assert.False(t, consumed)

	// A user who never held an offer is also a no-op.
	consumed, err = engine.UseReservedPlace(ctx, retreat.ID, 2)
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestNotifyDeliveryFailureStillRecordsOffer(t *testing.T) {
	store, notifier, _, engine, retreat := fixture(t, 6, 1)
	notifier.fail = true
	ctx := context.Background()

	place, err := engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	res, err := engine.Notify(ctx, place.ID)
	require.NoError(t, err)

	// Fire-and-forget: the offer stands even though the email bounced.
	assert.Equal(t, []string{"user1@example.com"}, res.Emails)
	require.Len(t, store.reserved, 1)
	assert.True(t, store.reserved[0].Notified)
}

func TestPlacesRemaining(t *testing.T) {
	store, _, _, engine, retreat := fixture(t, 6, 0)
	ctx := context.Background()

	store.active[retreat.ID] = 4
	store.invSeats[retreat.ID] = 1

	n, err := engine.PlacesRemaining(ctx, retreat.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// An open wait-queue place holds a seat out of general availability.
	_, err = engine.AddPlace(ctx, retreat.ID, 99)
	require.NoError(t, err)
	n, err = engine.PlacesRemaining(ctx, retreat.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Oversubscription clamps at zero instead of going negative.
	store.active[retreat.ID] = 9
	n, err = engine.PlacesRemaining(ctx, retreat.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubscribeUniquePerRetreat(t *testing.T) {
	store, _, _, engine, retreat := fixture(t, 6, 0)
	ctx := context.Background()
	store.addUser(7)

	_, err := engine.Subscribe(ctx, retreat.ID, 7)
	require.NoError(t, err)
	_, err = engine.Subscribe(ctx, retreat.ID, 7)
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	require.NoError(t, engine.Unsubscribe(ctx, retreat.ID, 7))
	assert.ErrorIs(t, engine.Unsubscribe(ctx, retreat.ID, 7), ErrTicketNotFound)
}
