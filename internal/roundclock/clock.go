// Package roundclock deterministically maps wall-clock time to a round
// identifier and decides whether a given instant falls inside a round's
// intake sub-window.
package roundclock

import (
	"errors"
	"time"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// ErrInvalidRoundConfig is returned by New when the duration/intake
// invariant (0 < intakeWindowSeconds ≤ durationSeconds) does not hold.
var ErrInvalidRoundConfig = errors.New("roundclock: invalid round configuration")

// Clock is an immutable round-timing configuration. Once constructed it
// never changes; a redeployment with different timing is a new Clock, not
// a mutation of this one.
type Clock struct {
	namespace           string
	durationSeconds     uint64
	intakeWindowSeconds uint64
}

// New validates and returns a Clock for the given namespace, round
// duration, and intake window (all in seconds).
func New(namespace string, durationSeconds, intakeWindowSeconds uint64) (*Clock, error) {
	if durationSeconds == 0 || intakeWindowSeconds == 0 || intakeWindowSeconds > durationSeconds {
		return nil, ErrInvalidRoundConfig
	}
	return &Clock{
		namespace:           namespace,
		durationSeconds:     durationSeconds,
		intakeWindowSeconds: intakeWindowSeconds,
	}, nil
}

// Namespace returns the configured namespace.
func (c *Clock) Namespace() string { return c.namespace }

// DurationSeconds returns the round duration in seconds.
func (c *Clock) DurationSeconds() uint64 { return c.durationSeconds }

// IntakeWindowSeconds returns the intake sub-window length in seconds.
func (c *Clock) IntakeWindowSeconds() uint64 { return c.intakeWindowSeconds }

// RoundStartSeconds floors t to the start of its enclosing round:
// ⌊t/duration⌋·duration.
func (c *Clock) RoundStartSeconds(t time.Time) uint64 {
	sec := uint64(t.Unix())
	return (sec / c.durationSeconds) * c.durationSeconds
}

// RoundID computes roundId(t) = keccak256(namespace ‖ uint256(roundStartSeconds(t))).
func (c *Clock) RoundID(t time.Time) domain.Hash {
	return domain.ComputeRoundID(c.namespace, c.RoundStartSeconds(t))
}

// RoundEndSeconds returns the exclusive end of the round containing t.
func (c *Clock) RoundEndSeconds(t time.Time) uint64 {
	return c.RoundStartSeconds(t) + c.durationSeconds
}

// InIntake reports whether t falls inside its round's intake sub-window:
// t − roundStartSeconds(t) < intakeWindow.
func (c *Clock) InIntake(t time.Time) bool {
	sec := uint64(t.Unix())
	start := c.RoundStartSeconds(t)
	return sec-start < c.intakeWindowSeconds
}

// CurrentRoundID is a convenience wrapper for RoundID(now()).
func (c *Clock) CurrentRoundID(now func() time.Time) domain.Hash {
	return c.RoundID(now())
}
