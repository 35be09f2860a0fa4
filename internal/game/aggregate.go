package game

import (
	"time"

	"github.com/prediction-game/internal/domain"
)

// ChoiceStat is the tally for one choice within a round.
type ChoiceStat struct {
	Choice     domain.Choice `json:"choice"`
	Count      int           `json:"count"`
	Percentage float64       `json:"percentage"`
}

// Participant is one player's row in the round summary. IsWinner is
// meaningful only once the round is settled and is always false before then.
type Participant struct {
	Player   domain.PlayerInfo `json:"player"`
	Choice   domain.Choice     `json:"choice"`
	IsWinner bool              `json:"is_winner"`
}

// RoundStats is the derived view of a round's prediction set.
type RoundStats struct {
	Phase        Phase         `json:"phase"`
	PerChoice    []ChoiceStat  `json:"per_choice"`
	Participants []Participant `json:"participants"`
}

// Aggregate derives per-choice tallies and the participant list from a round
// snapshot. PerChoice always holds exactly three entries in the fixed
// enumeration order. With no participants every percentage is zero.
func Aggregate(round *domain.Round, now time.Time) RoundStats {
	phase := PhaseOf(round, now)
	settled := phase == PhaseSettled

	counts := make(map[domain.Choice]int, 3)
	participants := make([]Participant, 0, len(round.Predictions))
	for _, pred := range round.Predictions {
		counts[pred.Choice]++
		isWinner := settled && round.WinningChoice != nil && pred.Choice == *round.WinningChoice
		participants = append(participants, Participant{
			Player:   pred.Player,
			Choice:   pred.Choice,
			IsWinner: isWinner,
		})
	}

	total := len(round.Predictions)
	perChoice := make([]ChoiceStat, 0, 3)
	for _, c := range domain.Choices() {
		stat := ChoiceStat{Choice: c, Count: counts[c]}
		if total > 0 {
			stat.Percentage = 100 * float64(counts[c]) / float64(total)
		}
		perChoice = append(perChoice, stat)
	}

	return RoundStats{
		Phase:        phase,
		PerChoice:    perChoice,
		Participants: participants,
	}
}
