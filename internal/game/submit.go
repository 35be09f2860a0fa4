package game

import (
	"context"
	"time"

	"github.com/prediction-game/internal/domain"
)

// RoundWriter applies an accepted prediction mutation against the
// authoritative store. The submitter never patches the round snapshot it was
// given; after a successful write the caller must re-fetch both the round and
// the player balance.
type RoundWriter interface {
	WritePrediction(ctx context.Context, roundID int64, req domain.SubmitRequest) (*domain.Prediction, error)
}

// Submitter validates a player's choice against a round and forwards it to
// the round writer. It assumes serialized invocation per player: the caller
// must not issue a second submission while one is in flight.
type Submitter struct {
	writer RoundWriter
	now    func() time.Time
}

// NewSubmitter creates a submitter. now may be nil, in which case wall time
// is used.
func NewSubmitter(writer RoundWriter, now func() time.Time) *Submitter {
	if now == nil {
		now = time.Now
	}
	return &Submitter{writer: writer, now: now}
}

// Submit records choice for the player on the given round.
//
// It fails with ErrInvalidChoice when the choice is outside the enumeration
// and with ErrRoundClosed when the round's phase is not Active; the two are
// distinct so the caller can tell a bad request from a lost race with the
// clock. Resubmitting the choice the round already records for the player is
// a no-op: no mutation is emitted and the stored prediction is returned with
// mutated=false. That guard is an invariant, not an optimization, because
// the store charges entry points per accepted mutation.
func (s *Submitter) Submit(ctx context.Context, round *domain.Round, player *domain.Player, choice domain.Choice) (pred *domain.Prediction, mutated bool, err error) {
	if !choice.Valid() {
		return nil, false, domain.ErrInvalidChoice
	}
	if PhaseOf(round, s.now()) != PhaseActive {
		return nil, false, domain.ErrRoundClosed
	}

	if existing := round.PredictionBy(player.Name); existing != nil && existing.Choice == choice {
		return existing, false, nil
	}

	pred, err = s.writer.WritePrediction(ctx, round.ID, domain.SubmitRequest{
		PlayerUID: player.UID,
		Choice:    choice,
	})
	if err != nil {
		return nil, false, err
	}
	return pred, true, nil
}
