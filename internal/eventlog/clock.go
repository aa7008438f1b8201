package eventlog

import "sync/atomic"

// clock is the monotonic sequence-id source.
//
// Every append reserves its id here before touching storage. Reservation is
// a single atomic increment, so concurrent appenders never receive the same
// id and ids are strictly increasing for the life of the store instance.
type clock struct {
	seq atomic.Int64
}

// newClockAt creates a clock resuming after start. Used on open to continue
// from the highest persisted sequence id.
func newClockAt(start int64) *clock {
	c := &clock{}
	c.seq.Store(start)
	return c
}

// next reserves and returns the next sequence id.
func (c *clock) next() int64 {
	return c.seq.Add(1)
}

// advancePast lifts the clock to at least seq. Used when a caller supplies
// an explicit sequence id so later reservations stay monotonic.
func (c *clock) advancePast(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq {
			return
		}
		if c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// current returns the last reserved sequence id without reserving.
func (c *clock) current() int64 {
	return c.seq.Load()
}
