package waitqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefundDeadline(t *testing.T) {
	start := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	r := Retreat{StartTime: start, MinDayRefund: 7}
	assert.Equal(t, start.AddDate(0, 0, -7), r.RefundDeadline())

	// Zero refund days keeps the refund window open until the start
	// itself, so the deadline coincides with it.
	r.MinDayRefund = 0
	assert.Equal(t, start, r.RefundDeadline())
}

func TestSeatCountsRemaining(t *testing.T) {
	cases := []struct {
		name string
		c    SeatCounts
		want int
	}{
		{"empty retreat", SeatCounts{Seats: 10}, 10},
		{"partially booked", SeatCounts{Seats: 10, ActiveReservations: 6}, 4},
		{"wait queue holds seats", SeatCounts{Seats: 10, ActiveReservations: 6, AvailablePlaces: 3}, 1},
		{"invitations ring-fence seats", SeatCounts{Seats: 10, ActiveReservations: 5, ReservedInvitationSeats: 5}, 0},
		{"oversubscribed clamps to zero", SeatCounts{Seats: 10, ActiveReservations: 11, AvailablePlaces: 2}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.c.Remaining())
		})
	}
}
