package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
	"github.com/prediction-game/internal/pricefeed"
)

// settlementLookback is how far before the target the settlement candle fetch
// starts, so the after series covers the closing stretch of the window.
const settlementLookback = 3 * time.Hour

// SettleDue settles every round whose target time has passed. Each round is
// settled independently; one failure does not block the rest.
func (s *GameService) SettleDue(ctx context.Context) ([]int64, error) {
	due, err := s.store.DueRounds(ctx, s.now())
	if err != nil {
		return nil, err
	}

	var settled []int64
	var errs []error
	for _, round := range due {
		if err := s.settleRound(ctx, round); err != nil {
			s.logger.Error("failed to settle round", "round_id", round.ID, "error", err)
			errs = append(errs, fmt.Errorf("round %d: %w", round.ID, err))
			continue
		}
		settled = append(settled, round.ID)
	}

	if len(settled) > 0 {
		s.refreshPointsCache(ctx)
	}
	return settled, errors.Join(errs...)
}

func (s *GameService) settleRound(ctx context.Context, round *domain.Round) error {
	candles, err := s.feed.Candles(ctx, round.TargetAt.Add(-settlementLookback), 3)
	if err != nil {
		return fmt.Errorf("fetching settlement candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("fetching settlement candles: %w", domain.ErrInternalError)
	}

	last := candles[len(candles)-1]
	settlement := game.Settle(round, last.Close)

	// The after series is the candle opens plus a final point carrying the
	// settlement price itself, one interval past the last open.
	after := pricefeed.OpenSeries(candles)
	after = append(after, domain.PriceSample{
		Timestamp: last.OpenTime.Add(time.Hour).UnixMilli(),
		Price:     settlement.ResultPrice,
	})

	if err := s.store.ApplySettlement(ctx, round.ID, settlement, after); err != nil {
		return err
	}

	s.logger.Info("round settled",
		"round_id", round.ID,
		"base_price", round.BasePrice,
		"result_price", settlement.ResultPrice,
		"winning_choice", settlement.WinningChoice.String(),
		"predictions", len(round.Predictions),
	)
	return nil
}

// refreshPointsCache rewrites the leaderboard sorted set from the store.
// Settlement moved points for every winner, so a bulk rewrite is simpler than
// chasing per-player deltas.
func (s *GameService) refreshPointsCache(ctx context.Context) {
	stats, err := s.store.LeaderboardStats(ctx)
	if err != nil {
		s.logger.Warn("failed to load stats for cache refresh", "error", err)
		return
	}
	points := make(map[string]int64, len(stats))
	for _, st := range stats {
		points[st.Handle] = st.Points
	}
	if err := s.cache.BatchSetPoints(ctx, points); err != nil {
		s.logger.Warn("failed to refresh points cache", "error", err)
	}
}
