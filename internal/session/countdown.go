package session

// Countdown is the tick reducer for the session timer. It only holds the
// remaining seconds and the one-time expiry edge; the tick source lives in
// the controller so the reducer stays free of hidden time dependencies.
type Countdown struct {
	remaining int
	expired   bool
}

// NewCountdown creates a countdown with the given remaining seconds.
func NewCountdown(seconds int) *Countdown {
	c := &Countdown{}
	c.Seed(seconds)
	return c
}

// Seed replaces the remaining time and re-arms the expiry edge. Negative
// values clamp to zero.
func (c *Countdown) Seed(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
	c.expired = false
}

// Remaining returns the seconds left, never negative.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// Tick advances the countdown by one second. It reports expired=true only on
// the transition into zero, so a tick arriving after expiry cannot re-trigger
// time-up handling.
func (c *Countdown) Tick() (remaining int, expired bool) {
	if c.remaining <= 0 {
		return 0, false
	}
	c.remaining--
	if c.remaining == 0 && !c.expired {
		c.expired = true
		return 0, true
	}
	return c.remaining, false
}
