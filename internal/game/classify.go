package game

import (
	"time"

	"github.com/prediction-game/internal/domain"
)

// Threshold is the relative price move that separates a neutral outcome from
// a directional one. It is the single constant behind both settlement and the
// projection lines drawn on the chart, so the two can never drift apart.
const Threshold = 0.003

// ProjectionHorizon is how far past start_at the projection lines extend.
const ProjectionHorizon = 4 * time.Hour

// Classify maps a price move from basePrice to resultPrice onto a choice.
// The boundary is inclusive on both sides: a move of exactly +0.3% is
// Bullish and exactly -0.3% is Bearish.
func Classify(basePrice, resultPrice float64) domain.Choice {
	delta := (resultPrice - basePrice) / basePrice
	switch {
	case delta >= Threshold:
		return domain.ChoiceBullish
	case delta <= -Threshold:
		return domain.ChoiceBearish
	default:
		return domain.ChoiceNeutral
	}
}

// BearTarget returns the price endpoint of the bearish projection line.
func BearTarget(basePrice float64) float64 {
	return basePrice * (1 - Threshold)
}

// BullTarget returns the price endpoint of the bullish projection line.
func BullTarget(basePrice float64) float64 {
	return basePrice * (1 + Threshold)
}
