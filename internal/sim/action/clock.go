package action

import "time"

// Clock is the simulation time source. Now is elapsed simulation time, not wall time.
type Clock interface {
	Now() time.Duration
}

// TickClock advances by a fixed step each time the tick driver calls Advance.
// It is owned by the tick goroutine.
type TickClock struct {
	now  time.Duration
	step time.Duration
}

func NewTickClock(tickRateHz int) *TickClock {
	if tickRateHz <= 0 {
		tickRateHz = 20
	}
	return &TickClock{step: time.Second / time.Duration(tickRateHz)}
}

func (c *TickClock) Now() time.Duration { return c.now }

func (c *TickClock) Step() time.Duration { return c.step }

// Advance moves the clock forward by one tick.
func (c *TickClock) Advance() { c.now += c.step }

// AdvanceBy moves the clock forward by d. Used by tests and replays.
func (c *TickClock) AdvanceBy(d time.Duration) { c.now += d }
