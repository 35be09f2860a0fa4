package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-game/internal/domain"
)

type fakeWriter struct {
	calls []domain.SubmitRequest
	pred  *domain.Prediction
	err   error
}

func (w *fakeWriter) WritePrediction(_ context.Context, roundID int64, req domain.SubmitRequest) (*domain.Prediction, error) {
	w.calls = append(w.calls, req)
	if w.err != nil {
		return nil, w.err
	}
	if w.pred != nil {
		return w.pred, nil
	}
	return &domain.Prediction{ID: 1, RoundID: roundID, Choice: req.Choice}, nil
}

func fixedNow(r *domain.Round) func() time.Time {
	return func() time.Time { return r.StartAt.Add(time.Minute) }
}

func testPlayer() *domain.Player {
	return &domain.Player{UID: "11111111-1111-1111-1111-111111111111", Name: "alice", Points: 1000}
}

func TestSubmit_InvalidChoice(t *testing.T) {
	r := testRound()
	w := &fakeWriter{}
	s := NewSubmitter(w, fixedNow(r))

	_, _, err := s.Submit(context.Background(), r, testPlayer(), domain.Choice(0))
	assert.ErrorIs(t, err, domain.ErrInvalidChoice)

	_, _, err = s.Submit(context.Background(), r, testPlayer(), domain.Choice(4))
	assert.ErrorIs(t, err, domain.ErrInvalidChoice)
	assert.Empty(t, w.calls, "validation failures must not reach the writer")
}

func TestSubmit_RejectedOutsideActivePhase(t *testing.T) {
	r := testRound()
	w := &fakeWriter{}

	closing := NewSubmitter(w, func() time.Time { return r.ClosedAt })
	_, _, err := closing.Submit(context.Background(), r, testPlayer(), domain.ChoiceBullish)
	assert.ErrorIs(t, err, domain.ErrRoundClosed)

	settled := NewSubmitter(w, fixedNow(r))
	_, _, err = settled.Submit(context.Background(), settle(testRound(), 101000), testPlayer(), domain.ChoiceBullish)
	assert.ErrorIs(t, err, domain.ErrRoundClosed)

	// Closed beats unselected: the failure is a state error either way.
	assert.False(t, domain.IsValidationError(err))
	assert.True(t, domain.IsStateError(err))
	assert.Empty(t, w.calls)
}

func TestSubmit_NoOpOnUnchangedChoice(t *testing.T) {
	r := testRound()
	r.Predictions = []domain.Prediction{{
		ID:     7,
		Player: domain.PlayerInfo{Name: "alice"},
		Choice: domain.ChoiceNeutral,
	}}
	w := &fakeWriter{}
	s := NewSubmitter(w, fixedNow(r))

	pred, mutated, err := s.Submit(context.Background(), r, testPlayer(), domain.ChoiceNeutral)
	require.NoError(t, err)
	assert.False(t, mutated)
	assert.Equal(t, int64(7), pred.ID)
	assert.Empty(t, w.calls, "resubmitting the saved choice must emit zero mutations")
}

func TestSubmit_UpdateChangedChoice(t *testing.T) {
	r := testRound()
	r.Predictions = []domain.Prediction{{
		ID:     7,
		Player: domain.PlayerInfo{Name: "alice"},
		Choice: domain.ChoiceNeutral,
	}}
	w := &fakeWriter{}
	s := NewSubmitter(w, fixedNow(r))

	_, mutated, err := s.Submit(context.Background(), r, testPlayer(), domain.ChoiceBullish)
	require.NoError(t, err)
	assert.True(t, mutated)
	require.Len(t, w.calls, 1)
	assert.Equal(t, domain.ChoiceBullish, w.calls[0].Choice)
}

func TestSubmit_FirstSubmission(t *testing.T) {
	r := testRound()
	w := &fakeWriter{}
	s := NewSubmitter(w, fixedNow(r))

	pred, mutated, err := s.Submit(context.Background(), r, testPlayer(), domain.ChoiceBearish)
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Equal(t, domain.ChoiceBearish, pred.Choice)
	require.Len(t, w.calls, 1)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", w.calls[0].PlayerUID)
}

func TestSubmit_WriterFailureSurfaced(t *testing.T) {
	r := testRound()
	boom := errors.New("service unreachable")
	w := &fakeWriter{err: boom}
	s := NewSubmitter(w, fixedNow(r))

	_, mutated, err := s.Submit(context.Background(), r, testPlayer(), domain.ChoiceBullish)
	assert.ErrorIs(t, err, boom)
	assert.False(t, mutated)
	// The snapshot is untouched; the caller decides whether to retry.
	assert.Nil(t, r.PredictionBy("alice"))
}
