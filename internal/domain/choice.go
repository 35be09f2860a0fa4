package domain

// Choice is a player's directional prediction for a round.
// The numeric values are part of the wire format and define display order.
type Choice int

const (
	ChoiceBearish Choice = 1
	ChoiceNeutral Choice = 2
	ChoiceBullish Choice = 3
)

// Choices lists every choice in the fixed enumeration order used for
// deterministic rendering: Bearish, Neutral, Bullish.
func Choices() [3]Choice {
	return [3]Choice{ChoiceBearish, ChoiceNeutral, ChoiceBullish}
}

// Valid reports whether c is a member of the closed enumeration.
func (c Choice) Valid() bool {
	return c == ChoiceBearish || c == ChoiceNeutral || c == ChoiceBullish
}

func (c Choice) String() string {
	switch c {
	case ChoiceBearish:
		return "bearish"
	case ChoiceNeutral:
		return "neutral"
	case ChoiceBullish:
		return "bullish"
	default:
		return "unknown"
	}
}
