package model

import "time"

// CountdownKind distinguishes host-requested countdowns from the
// auto-start countdown, which user requests may not cancel.
type CountdownKind string

const (
	CountdownMatchStart CountdownKind = "match_start"
	CountdownForceStart CountdownKind = "force_start"
)

// Countdown is a timed promise to run a room action unless cancelled.
// Remaining time is always derived from the start instant, never stored
// as a decrementing value, so late joiners see an accurate clock.
type Countdown struct {
	Kind      CountdownKind `json:"kind"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"startedAt"`
}

// RemainingAt returns the time left on the countdown at the given instant.
func (c *Countdown) RemainingAt(now time.Time) time.Duration {
	r := c.StartedAt.Add(c.Duration).Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// Remaining returns the time left on the countdown now.
func (c *Countdown) Remaining() time.Duration {
	return c.RemainingAt(time.Now())
}
