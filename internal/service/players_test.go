package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-game/internal/domain"
)

func TestRegisterPlayer(t *testing.T) {
	svc, _, _, cache := newTestService(t, baseTime)
	ctx := context.Background()

	player, err := svc.RegisterPlayer(ctx, "alice", false)
	require.NoError(t, err)
	assert.NotEmpty(t, player.UID)
	assert.EqualValues(t, 1000, player.Points)
	assert.EqualValues(t, 1000, cache.points["alice"])

	_, err = svc.RegisterPlayer(ctx, "alice", false)
	assert.ErrorIs(t, err, domain.ErrNameTaken)
}

func TestRegisterPlayerBlankName(t *testing.T) {
	svc, _, _, _ := newTestService(t, baseTime)

	_, err := svc.RegisterPlayer(context.Background(), "   ", false)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestRemovePlayer(t *testing.T) {
	svc, _, _, cache := newTestService(t, baseTime)
	ctx := context.Background()

	player, err := svc.RegisterPlayer(ctx, "alice", false)
	require.NoError(t, err)

	require.NoError(t, svc.RemovePlayer(ctx, player.UID))
	assert.Equal(t, []string{"alice"}, cache.removed)

	_, err = svc.Player(ctx, player.UID)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	err = svc.RemovePlayer(ctx, player.UID)
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestLeaderboard(t *testing.T) {
	svc, store, _, _ := newTestService(t, baseTime)
	store.stats = []domain.PlayerStats{
		{Handle: "alice", Points: 500, TotalRounds: 2, Wins: 1},
		{Handle: "bob", Points: 700, TotalRounds: 10, Wins: 3},
	}

	entries, err := svc.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Handle)
	assert.EqualValues(t, 1, entries[0].Rank)
	assert.Equal(t, "alice", entries[1].Handle)
	assert.EqualValues(t, 2, entries[1].Rank)
}

func TestPointsBoardFromCache(t *testing.T) {
	svc, _, _, cache := newTestService(t, baseTime)
	cache.points = map[string]int64{"alice": 900, "bob": 1200, "carol": 900}

	board, err := svc.PointsBoard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Handle)
	assert.EqualValues(t, 1, board[0].Position)
	assert.EqualValues(t, 1200, board[0].Points)
	assert.Equal(t, "alice", board[1].Handle)
	assert.EqualValues(t, 2, board[1].Position)
}

func TestPointsBoardFallbackRebuildsMirror(t *testing.T) {
	svc, store, _, cache := newTestService(t, baseTime)
	cache.readErr = errors.New("connection refused")
	store.stats = []domain.PlayerStats{
		{Handle: "alice", Points: 500, TotalRounds: 2, Wins: 1},
		{Handle: "bob", Points: 700, TotalRounds: 10, Wins: 3},
	}

	board, err := svc.PointsBoard(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Handle)
	assert.EqualValues(t, 700, board[0].Points)

	// The fallback repopulates the sorted set for the next read.
	assert.Equal(t, map[string]int64{"alice": 500, "bob": 700}, cache.batched)
}

func TestPointsStandingFromCache(t *testing.T) {
	svc, store, _, cache := newTestService(t, baseTime)
	cache.points = map[string]int64{"alice": 900, "bot_7": 1200}
	cache.infos["bot_7"] = domain.PlayerInfo{Name: "bot_7", IsAI: true, Points: 1200}

	standing, err := svc.PointsStanding(context.Background(), "bot_7")
	require.NoError(t, err)
	assert.EqualValues(t, 1, standing.Position)
	assert.True(t, standing.IsAI)
	assert.EqualValues(t, 1200, standing.Points)
	assert.Zero(t, store.statsCalls)
}

func TestPointsStandingStoreFallback(t *testing.T) {
	svc, store, _, _ := newTestService(t, baseTime)
	store.stats = []domain.PlayerStats{
		{Handle: "alice", Points: 500, TotalRounds: 2, Wins: 1},
		{Handle: "bob", Points: 700, TotalRounds: 10, Wins: 3},
	}

	standing, err := svc.PointsStanding(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, standing.Position)
	assert.EqualValues(t, 500, standing.Points)

	_, err = svc.PointsStanding(context.Background(), "mallory")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestStanding(t *testing.T) {
	svc, store, _, _ := newTestService(t, baseTime)
	store.stats = []domain.PlayerStats{
		{Handle: "alice", Points: 500, TotalRounds: 2, Wins: 1},
		{Handle: "bob", Points: 700, TotalRounds: 10, Wins: 3},
	}

	entry, err := svc.Standing(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, entry.Rank)
	assert.InDelta(t, 0.5, entry.WinRate, 1e-9)

	_, err = svc.Standing(context.Background(), "mallory")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}
