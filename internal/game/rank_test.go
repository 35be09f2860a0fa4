package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-game/internal/domain"
)

func TestRank_OrdersByPointsDescending(t *testing.T) {
	entries := Rank([]domain.PlayerStats{
		{Handle: "a", Points: 500, Wins: 10, TotalRounds: 20},
		{Handle: "b", Points: 700, Wins: 3, TotalRounds: 10},
	})

	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Handle)
	assert.Equal(t, int64(1), entries[0].Rank)
	assert.InDelta(t, 0.3, entries[0].WinRate, 1e-9)

	assert.Equal(t, "a", entries[1].Handle)
	assert.Equal(t, int64(2), entries[1].Rank)
	assert.InDelta(t, 0.5, entries[1].WinRate, 1e-9)
}

func TestRank_DenseRanksOnTies(t *testing.T) {
	entries := Rank([]domain.PlayerStats{
		{Handle: "a", Points: 700, Wins: 1, TotalRounds: 4},
		{Handle: "b", Points: 700, Wins: 3, TotalRounds: 4},
		{Handle: "c", Points: 300},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Rank)
	assert.Equal(t, int64(1), entries[1].Rank)
	assert.Equal(t, int64(2), entries[2].Rank, "dense ranking leaves no gap after a tie")

	// Tie-break: win rate descending.
	assert.Equal(t, "b", entries[0].Handle)
	assert.Equal(t, "a", entries[1].Handle)
}

func TestRank_TieBreakFallsBackToHandle(t *testing.T) {
	entries := Rank([]domain.PlayerStats{
		{Handle: "zoe", Points: 100, Wins: 1, TotalRounds: 2},
		{Handle: "amy", Points: 100, Wins: 1, TotalRounds: 2},
	})
	assert.Equal(t, "amy", entries[0].Handle)
	assert.Equal(t, "zoe", entries[1].Handle)
}

func TestRank_ZeroRoundsMeansZeroWinRate(t *testing.T) {
	entries := Rank([]domain.PlayerStats{{Handle: "new", Points: 1000}})
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].WinRate)
}

func TestStanding_MatchesFullBoard(t *testing.T) {
	stats := []domain.PlayerStats{
		{Handle: "a", Points: 500, Wins: 10, TotalRounds: 20},
		{Handle: "b", Points: 700, Wins: 3, TotalRounds: 10},
		{Handle: "c", Points: 500, Wins: 2, TotalRounds: 10},
	}

	board := Rank(stats)
	for _, want := range board {
		got, ok := Standing(stats, want.Handle)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := Standing(stats, "missing")
	assert.False(t, ok)
}
