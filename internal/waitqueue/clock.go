package waitqueue

import "time"

// Clock supplies the current time to the engine.  The drip/burst decision
// and the "retreat already started" guard both compare against wall-clock
// time, so the clock is injected rather than read from time.Now inside
// business logic; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.  All times in this service are UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
