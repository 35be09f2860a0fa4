package domain

import "time"

// Round is one instance of the prediction game, bounded by
// start_at/closed_at/target_at. Invariants: closed_at >= start_at,
// target_at >= closed_at, and result_price/winning_choice are both nil or
// both set (settlement is atomic and irreversible).
type Round struct {
	ID            int64        `json:"id"`
	StartAt       time.Time    `json:"start_at"`
	ClosedAt      time.Time    `json:"closed_at"`
	TargetAt      time.Time    `json:"target_at"`
	BasePrice     float64      `json:"base_price"`
	ResultPrice   *float64     `json:"result_price"`
	WinningChoice *Choice      `json:"winning_choice"`
	Predictions   []Prediction `json:"predictions"`
}

// Settled reports whether the round has an authoritative outcome.
func (r *Round) Settled() bool {
	return r.WinningChoice != nil
}

// PredictionBy returns the recorded prediction for the named player, or nil.
// A round holds at most one prediction per player; the latest submission wins.
func (r *Round) PredictionBy(playerName string) *Prediction {
	for i := range r.Predictions {
		if r.Predictions[i].Player.Name == playerName {
			return &r.Predictions[i]
		}
	}
	return nil
}

// Prediction is a player's recorded choice for a round. It is mutated in
// place on resubmission while the round is Active and immutable afterwards.
type Prediction struct {
	ID           int64      `json:"id,omitempty"`
	RoundID      int64      `json:"round_id,omitempty"`
	Player       PlayerInfo `json:"player"`
	Choice       Choice     `json:"choice"`
	Won          *bool      `json:"won,omitempty"`
	EarnedPoints int64      `json:"earned_points,omitempty"`
}

// SubmitRequest is the write contract for recording or updating a prediction.
type SubmitRequest struct {
	PlayerUID string `json:"player_uid"`
	Choice    Choice `json:"choice"`
}
