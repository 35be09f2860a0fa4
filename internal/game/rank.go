package game

import (
	"sort"

	"github.com/prediction-game/internal/domain"
)

// Rank orders player stats into leaderboard entries.
//
// Ordering is descending by points. Equal points are broken by win rate
// descending, then handle ascending, so ranking is stable across
// re-computation. Ranks are 1-based and dense: players tied on points share
// a rank and the next distinct points value takes the following rank with no
// gap.
func Rank(stats []domain.PlayerStats) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(stats))
	for _, s := range stats {
		entries = append(entries, domain.LeaderboardEntry{
			Handle:      s.Handle,
			Points:      s.Points,
			TotalRounds: s.TotalRounds,
			Wins:        s.Wins,
			WinRate:     winRate(s),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].WinRate != entries[j].WinRate {
			return entries[i].WinRate > entries[j].WinRate
		}
		return entries[i].Handle < entries[j].Handle
	})

	rank := int64(0)
	for i := range entries {
		if i == 0 || entries[i].Points != entries[i-1].Points {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}

// Standing returns the ranked entry for one handle, computed with the same
// ordering as the full board so the two views can never disagree.
func Standing(stats []domain.PlayerStats, handle string) (domain.LeaderboardEntry, bool) {
	for _, e := range Rank(stats) {
		if e.Handle == handle {
			return e, true
		}
	}
	return domain.LeaderboardEntry{}, false
}

func winRate(s domain.PlayerStats) float64 {
	if s.TotalRounds == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalRounds)
}
