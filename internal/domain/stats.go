package domain

// PlayerStats is the per-player aggregate the leaderboard is ranked from.
type PlayerStats struct {
	Handle      string `json:"handle"`
	Points      int64  `json:"points"`
	TotalRounds int64  `json:"total_rounds"`
	Wins        int64  `json:"wins"`
}

// PointsStanding is a row of the live points board. Position is the plain
// 1-indexed place in the points ordering, not the dense competition rank the
// full leaderboard renders; it exists for cheap cache-served lookups.
type PointsStanding struct {
	Position int64  `json:"position"`
	Handle   string `json:"handle"`
	IsAI     bool   `json:"is_ai,omitempty"`
	Points   int64  `json:"points"`
}

// LeaderboardEntry is a ranked leaderboard row.
type LeaderboardEntry struct {
	Rank        int64   `json:"rank"`
	Handle      string  `json:"handle"`
	Points      int64   `json:"points"`
	TotalRounds int64   `json:"total_rounds"`
	Wins        int64   `json:"wins"`
	WinRate     float64 `json:"win_rate"`
}
