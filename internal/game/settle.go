package game

import "github.com/prediction-game/internal/domain"

// Wager economics. Entry is charged once per round on a player's first
// accepted submission; choice updates are free.
const (
	EntryCost        = 100
	RewardMultiplier = 2
)

// Award is the settlement outcome for one recorded prediction.
type Award struct {
	PredictionID int64
	Won          bool
	Earned       int64
}

// Settlement is the atomic outcome of a round: result price, winning choice
// and the per-prediction awards, all derived together.
type Settlement struct {
	ResultPrice   float64
	WinningChoice domain.Choice
	Awards        []Award
}

// Settle classifies the round outcome and splits the prize pool.
//
// The pool is participants x EntryCost x RewardMultiplier, divided evenly
// (integer division) among the winning predictions. Rounds with no winners
// keep the pool; rounds with no participants settle with an empty award list.
func Settle(round *domain.Round, resultPrice float64) Settlement {
	winning := Classify(round.BasePrice, resultPrice)

	winners := 0
	for _, p := range round.Predictions {
		if p.Choice == winning {
			winners++
		}
	}

	var share int64
	if winners > 0 {
		pool := int64(len(round.Predictions)) * EntryCost * RewardMultiplier
		share = pool / int64(winners)
	}

	awards := make([]Award, 0, len(round.Predictions))
	for _, p := range round.Predictions {
		a := Award{PredictionID: p.ID}
		if p.Choice == winning {
			a.Won = true
			a.Earned = share
		}
		awards = append(awards, a)
	}

	return Settlement{
		ResultPrice:   resultPrice,
		WinningChoice: winning,
		Awards:        awards,
	}
}
