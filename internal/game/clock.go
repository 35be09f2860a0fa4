package game

import (
	"fmt"
	"time"

	"github.com/prediction-game/internal/domain"
)

// Phase is the derived lifecycle state of a round. It is computed from the
// round snapshot and wall time, never stored.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseClosing
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseClosing:
		return "closing"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// PhaseOf maps a round snapshot plus wall time to its lifecycle phase.
// A settled round is Settled regardless of now, so over monotonically
// increasing now values the phase can only move Active -> Closing -> Settled.
func PhaseOf(round *domain.Round, now time.Time) Phase {
	if round.Settled() {
		return PhaseSettled
	}
	if !now.Before(round.ClosedAt) {
		return PhaseClosing
	}
	return PhaseActive
}

// maxCountdown keeps the rendered countdown fixed-width: minutes are not
// carried into hours, so anything further out saturates at "99:59".
const maxCountdown = 99*time.Minute + 59*time.Second

// Countdown renders the time remaining until the round stops accepting
// predictions as "mm:ss". It never goes negative: once closed_at has passed
// it renders "00:00". A now before start_at simply yields a larger remainder,
// clamped to maxCountdown.
func Countdown(round *domain.Round, now time.Time) string {
	remaining := round.ClosedAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > maxCountdown {
		remaining = maxCountdown
	}
	remaining = remaining.Truncate(time.Second)
	mins := int(remaining / time.Minute)
	secs := int(remaining % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
