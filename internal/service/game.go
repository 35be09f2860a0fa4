package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
	"github.com/prediction-game/internal/pricefeed"
)

// Store is the persistent backend for players, rounds and predictions.
type Store interface {
	CreatePlayer(ctx context.Context, uid, name string, isAI bool, startingPoints int64) (*domain.Player, error)
	GetPlayer(ctx context.Context, uid string) (*domain.Player, error)
	DeletePlayer(ctx context.Context, uid string) (*domain.Player, error)

	CreateRound(ctx context.Context, round *domain.Round, chart domain.ChartData) (*domain.Round, error)
	GetRound(ctx context.Context, id int64) (*domain.Round, error)
	ActiveRound(ctx context.Context, now time.Time) (*domain.Round, error)
	ListRounds(ctx context.Context) ([]*domain.Round, error)
	DueRounds(ctx context.Context, now time.Time) ([]*domain.Round, error)
	RoundChart(ctx context.Context, id int64) (domain.ChartData, error)

	WritePrediction(ctx context.Context, roundID int64, playerUID string, choice domain.Choice, entryCost int64) (*domain.Prediction, bool, error)
	ApplySettlement(ctx context.Context, roundID int64, s game.Settlement, after domain.ChartSeries) error
	LeaderboardStats(ctx context.Context) ([]domain.PlayerStats, error)
}

// Feed supplies candle data for round issuance and settlement.
type Feed interface {
	Candles(ctx context.Context, since time.Time, limit int) ([]pricefeed.Candle, error)
}

// Cache is the Redis read-path mirror. Cache failures never fail a request;
// they only cost the fast path.
type Cache interface {
	SetPoints(ctx context.Context, handle string, points int64) error
	BatchSetPoints(ctx context.Context, points map[string]int64) error
	RemovePlayer(ctx context.Context, handle string) error
	PointsRank(ctx context.Context, handle string) (int64, error)
	TopPoints(ctx context.Context, n int) ([]domain.PointsStanding, error)
	SetPlayerInfo(ctx context.Context, info domain.PlayerInfo) error
	GetPlayerInfo(ctx context.Context, handle string) (*domain.PlayerInfo, error)
	SetActiveRound(ctx context.Context, id int64) error
	ActiveRound(ctx context.Context) (int64, error)
	InvalidateActiveRound(ctx context.Context) error
}

// GameService provides business logic for the prediction game.
type GameService struct {
	store  Store
	feed   Feed
	cache  Cache
	config *config.GameConfig
	logger *slog.Logger
	now    func() time.Time

	submitter *game.Submitter
}

// NewGameService creates a new game service
func NewGameService(store Store, feed Feed, cache Cache, cfg *config.GameConfig, logger *slog.Logger) *GameService {
	s := &GameService{
		store:  store,
		feed:   feed,
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	s.submitter = game.NewSubmitter(predictionWriter{s}, func() time.Time { return s.now() })
	return s
}

// predictionWriter adapts the store to the submitter's write contract.
type predictionWriter struct {
	s *GameService
}

func (w predictionWriter) WritePrediction(ctx context.Context, roundID int64, req domain.SubmitRequest) (*domain.Prediction, error) {
	pred, charged, err := w.s.store.WritePrediction(ctx, roundID, req.PlayerUID, req.Choice, game.EntryCost)
	if err != nil {
		return nil, err
	}
	if charged {
		w.s.logger.Info("entry cost charged",
			"round_id", roundID,
			"player", pred.Player.Name,
			"cost", game.EntryCost,
		)
	}
	return pred, nil
}

// OpenRound opens the round covering the current hour: start_at is the top of
// the hour, the base price is the open of the newest candle, and the chart
// lookback becomes the before series.
func (s *GameService) OpenRound(ctx context.Context) (*domain.Round, error) {
	startAt := s.now().UTC().Truncate(time.Hour)

	candles, err := s.feed.Candles(ctx, startAt.Add(-s.config.HistoryWindow), 50)
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("fetching candles: %w", domain.ErrInternalError)
	}

	round := &domain.Round{
		StartAt:   startAt,
		ClosedAt:  startAt.Add(s.config.OpenDuration),
		TargetAt:  startAt.Add(s.config.TargetHorizon),
		BasePrice: candles[len(candles)-1].Open,
	}
	chart := domain.ChartData{Before: pricefeed.OpenSeries(candles), After: domain.ChartSeries{}}

	created, err := s.store.CreateRound(ctx, round, chart)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetActiveRound(ctx, created.ID); err != nil {
		s.logger.Warn("failed to cache active round", "error", err)
	}

	s.logger.Info("round opened",
		"round_id", created.ID,
		"start_at", created.StartAt,
		"base_price", created.BasePrice,
	)
	return created, nil
}

// Round fetches one round snapshot by id.
func (s *GameService) Round(ctx context.Context, id int64) (*domain.Round, error) {
	return s.store.GetRound(ctx, id)
}

// Rounds lists every round.
func (s *GameService) Rounds(ctx context.Context) ([]*domain.Round, error) {
	return s.store.ListRounds(ctx)
}

// ActiveRound fetches the round currently accepting predictions, trying the
// cached pointer before the store.
func (s *GameService) ActiveRound(ctx context.Context) (*domain.Round, error) {
	if id, err := s.cache.ActiveRound(ctx); err == nil {
		round, err := s.store.GetRound(ctx, id)
		if err == nil && game.PhaseOf(round, s.now()) == game.PhaseActive {
			return round, nil
		}
		// Stale pointer: the round closed since it was cached.
		if err := s.cache.InvalidateActiveRound(ctx); err != nil {
			s.logger.Warn("failed to invalidate active round", "error", err)
		}
	}

	round, err := s.store.ActiveRound(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetActiveRound(ctx, round.ID); err != nil {
		s.logger.Warn("failed to cache active round", "error", err)
	}
	return round, nil
}

// SubmitPrediction validates and records a player's choice for a round, then
// returns the freshly re-fetched round so the caller can reconcile its
// confirmed state. The stale snapshot is never patched locally.
func (s *GameService) SubmitPrediction(ctx context.Context, roundID int64, playerUID string, choice domain.Choice) (*domain.Prediction, *domain.Round, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	player, err := s.store.GetPlayer(ctx, playerUID)
	if err != nil {
		return nil, nil, err
	}

	pred, mutated, err := s.submitter.Submit(ctx, round, player, choice)
	if err != nil {
		return nil, nil, err
	}
	if !mutated {
		// No-op resubmission: nothing changed server-side, the snapshot the
		// caller holds is still confirmed.
		return pred, round, nil
	}

	fresh, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("refreshing round after submit: %w", err)
	}
	if err := s.cache.SetPlayerInfo(ctx, pred.Player); err != nil {
		s.logger.Warn("failed to cache player info", "error", err)
	}
	if err := s.cache.SetPoints(ctx, pred.Player.Name, pred.Player.Points); err != nil {
		s.logger.Warn("failed to cache points", "error", err)
	}
	return pred, fresh, nil
}

// RoundStats derives the aggregate view of a round.
func (s *GameService) RoundStats(ctx context.Context, id int64) (*game.RoundStats, error) {
	round, err := s.store.GetRound(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := game.Aggregate(round, s.now())
	return &stats, nil
}

// RoundOverlays builds the four chart series for a round.
func (s *GameService) RoundOverlays(ctx context.Context, id int64) (*game.ChartOverlays, error) {
	round, err := s.store.GetRound(ctx, id)
	if err != nil {
		return nil, err
	}
	chart, err := s.store.RoundChart(ctx, id)
	if err != nil {
		return nil, err
	}
	overlays := game.BuildOverlays(round.BasePrice, round.StartAt, chart.Before, chart.After)
	return &overlays, nil
}

// RoundChart returns the raw before/after samples for a round.
func (s *GameService) RoundChart(ctx context.Context, id int64) (domain.ChartData, error) {
	return s.store.RoundChart(ctx, id)
}
