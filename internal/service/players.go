package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
)

// RegisterPlayer creates a player with the configured starting balance.
func (s *GameService) RegisterPlayer(ctx context.Context, name string, isAI bool) (*domain.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidRequest
	}

	player, err := s.store.CreatePlayer(ctx, uuid.NewString(), name, isAI, s.config.StartingPoints)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetPlayerInfo(ctx, player.Info()); err != nil {
		s.logger.Warn("failed to cache player info", "error", err)
	}
	if err := s.cache.SetPoints(ctx, player.Name, player.Points); err != nil {
		s.logger.Warn("failed to cache points", "error", err)
	}

	s.logger.Info("player registered", "uid", player.UID, "name", player.Name, "is_ai", player.IsAI)
	return player, nil
}

// Player fetches a player by uid.
func (s *GameService) Player(ctx context.Context, uid string) (*domain.Player, error) {
	return s.store.GetPlayer(ctx, uid)
}

// RemovePlayer soft-deletes a player. The record keeps its predictions but the
// handle is anonymized and the player drops off the leaderboard.
func (s *GameService) RemovePlayer(ctx context.Context, uid string) error {
	player, err := s.store.DeletePlayer(ctx, uid)
	if err != nil {
		return err
	}

	if err := s.cache.RemovePlayer(ctx, player.Name); err != nil {
		s.logger.Warn("failed to evict player from cache", "error", err)
	}

	s.logger.Info("player removed", "uid", uid)
	return nil
}

// Leaderboard returns every active player ranked by points.
func (s *GameService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	stats, err := s.store.LeaderboardStats(ctx)
	if err != nil {
		return nil, err
	}
	return game.Rank(stats), nil
}

// Standing returns a single player's leaderboard row.
func (s *GameService) Standing(ctx context.Context, handle string) (*domain.LeaderboardEntry, error) {
	stats, err := s.store.LeaderboardStats(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := game.Standing(stats, handle)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &entry, nil
}

// PointsBoard returns the top n rows of the live points ordering. It is
// served from the mirrored sorted set, which every balance write keeps
// current, and falls back to the store when the mirror is cold or down.
func (s *GameService) PointsBoard(ctx context.Context, n int) ([]domain.PointsStanding, error) {
	if n <= 0 {
		n = 10
	}

	board, err := s.cache.TopPoints(ctx, n)
	if err == nil && len(board) > 0 {
		return board, nil
	}
	if err != nil {
		s.logger.Warn("points board cache read failed, falling back to store", "error", err)
	}

	stats, err := s.store.LeaderboardStats(ctx)
	if err != nil {
		return nil, err
	}

	entries := game.Rank(stats)
	if len(entries) > n {
		entries = entries[:n]
	}
	board = make([]domain.PointsStanding, 0, len(entries))
	points := make(map[string]int64, len(entries))
	for i, e := range entries {
		board = append(board, domain.PointsStanding{
			Position: int64(i) + 1,
			Handle:   e.Handle,
			Points:   e.Points,
		})
		points[e.Handle] = e.Points
	}

	// Rebuild the mirror so the next read hits the fast path.
	if len(points) > 0 {
		if err := s.cache.BatchSetPoints(ctx, points); err != nil {
			s.logger.Warn("failed to rebuild points cache", "error", err)
		}
	}
	return board, nil
}

// PointsStanding returns one player's live points position, served from the
// mirrored sorted set and cached projection with a store fallback.
func (s *GameService) PointsStanding(ctx context.Context, handle string) (*domain.PointsStanding, error) {
	pos, err := s.cache.PointsRank(ctx, handle)
	if err == nil {
		standing := &domain.PointsStanding{Position: pos, Handle: handle}
		if info, err := s.cache.GetPlayerInfo(ctx, handle); err == nil {
			standing.IsAI = info.IsAI
			standing.Points = info.Points
		}
		return standing, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		s.logger.Warn("points standing cache read failed, falling back to store", "error", err)
	}

	// A cache miss can mean either an unmirrored player or an unknown one;
	// only the store can tell the two apart.
	stats, err := s.store.LeaderboardStats(ctx)
	if err != nil {
		return nil, err
	}
	for i, e := range game.Rank(stats) {
		if e.Handle == handle {
			return &domain.PointsStanding{
				Position: int64(i) + 1,
				Handle:   e.Handle,
				Points:   e.Points,
			}, nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}
