package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
	"github.com/prediction-game/internal/game"
	"github.com/prediction-game/internal/pricefeed"
)

// fakeStore is an in-memory Store with per-method call counting where the
// tests care about write traffic.
type fakeStore struct {
	players map[string]*domain.Player
	rounds  map[int64]*domain.Round
	charts  map[int64]domain.ChartData
	stats   []domain.PlayerStats

	nextRoundID int64
	nextPredID  int64

	writeCalls  int
	statsCalls  int
	writeErr    error
	settled     []int64
	settleErr   map[int64]error
	afterSeries map[int64]domain.ChartSeries
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players:     make(map[string]*domain.Player),
		rounds:      make(map[int64]*domain.Round),
		charts:      make(map[int64]domain.ChartData),
		settleErr:   make(map[int64]error),
		afterSeries: make(map[int64]domain.ChartSeries),
	}
}

func (f *fakeStore) CreatePlayer(_ context.Context, uid, name string, isAI bool, startingPoints int64) (*domain.Player, error) {
	for _, p := range f.players {
		if p.Name == name {
			return nil, domain.ErrNameTaken
		}
	}
	p := &domain.Player{UID: uid, Name: name, IsAI: isAI, Points: startingPoints, Status: domain.PlayerStatusActive}
	f.players[uid] = p
	return p, nil
}

func (f *fakeStore) GetPlayer(_ context.Context, uid string) (*domain.Player, error) {
	p, ok := f.players[uid]
	if !ok || p.Deleted() {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (f *fakeStore) DeletePlayer(_ context.Context, uid string) (*domain.Player, error) {
	p, ok := f.players[uid]
	if !ok || p.Deleted() {
		return nil, domain.ErrPlayerNotFound
	}
	p.Status = domain.PlayerStatusDeleted
	return p, nil
}

func (f *fakeStore) CreateRound(_ context.Context, round *domain.Round, chart domain.ChartData) (*domain.Round, error) {
	for _, r := range f.rounds {
		if r.StartAt.Equal(round.StartAt) {
			return nil, domain.ErrRoundExists
		}
	}
	f.nextRoundID++
	round.ID = f.nextRoundID
	f.rounds[round.ID] = round
	f.charts[round.ID] = chart
	return round, nil
}

func (f *fakeStore) GetRound(_ context.Context, id int64) (*domain.Round, error) {
	r, ok := f.rounds[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	cp := *r
	cp.Predictions = append([]domain.Prediction(nil), r.Predictions...)
	return &cp, nil
}

func (f *fakeStore) ActiveRound(_ context.Context, now time.Time) (*domain.Round, error) {
	for _, r := range f.rounds {
		if !r.Settled() && !now.Before(r.StartAt) && now.Before(r.ClosedAt) {
			return r, nil
		}
	}
	return nil, domain.ErrRoundNotFound
}

func (f *fakeStore) ListRounds(_ context.Context) ([]*domain.Round, error) {
	out := make([]*domain.Round, 0, len(f.rounds))
	for _, r := range f.rounds {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) DueRounds(_ context.Context, now time.Time) ([]*domain.Round, error) {
	var out []*domain.Round
	for _, r := range f.rounds {
		if !r.Settled() && !now.Before(r.TargetAt) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) RoundChart(_ context.Context, id int64) (domain.ChartData, error) {
	chart, ok := f.charts[id]
	if !ok {
		return domain.ChartData{}, domain.ErrRoundNotFound
	}
	return chart, nil
}

func (f *fakeStore) WritePrediction(_ context.Context, roundID int64, playerUID string, choice domain.Choice, entryCost int64) (*domain.Prediction, bool, error) {
	f.writeCalls++
	if f.writeErr != nil {
		return nil, false, f.writeErr
	}
	round, ok := f.rounds[roundID]
	if !ok {
		return nil, false, domain.ErrRoundNotFound
	}
	player, ok := f.players[playerUID]
	if !ok {
		return nil, false, domain.ErrPlayerNotFound
	}

	if existing := round.PredictionBy(player.Name); existing != nil {
		existing.Choice = choice
		cp := *existing
		return &cp, false, nil
	}

	if player.Points < entryCost {
		return nil, false, domain.ErrInsufficientPoints
	}
	player.Points -= entryCost
	f.nextPredID++
	round.Predictions = append(round.Predictions, domain.Prediction{
		ID:      f.nextPredID,
		RoundID: roundID,
		Player:  player.Info(),
		Choice:  choice,
	})
	cp := round.Predictions[len(round.Predictions)-1]
	return &cp, true, nil
}

func (f *fakeStore) ApplySettlement(_ context.Context, roundID int64, s game.Settlement, after domain.ChartSeries) error {
	if err := f.settleErr[roundID]; err != nil {
		return err
	}
	round, ok := f.rounds[roundID]
	if !ok {
		return domain.ErrRoundNotFound
	}
	result := s.ResultPrice
	winning := s.WinningChoice
	round.ResultPrice = &result
	round.WinningChoice = &winning
	f.settled = append(f.settled, roundID)
	f.afterSeries[roundID] = after
	return nil
}

func (f *fakeStore) LeaderboardStats(_ context.Context) ([]domain.PlayerStats, error) {
	f.statsCalls++
	return f.stats, nil
}

type fakeFeed struct {
	candles []pricefeed.Candle
	err     error
	since   time.Time
	limit   int
}

func (f *fakeFeed) Candles(_ context.Context, since time.Time, limit int) ([]pricefeed.Candle, error) {
	f.since = since
	f.limit = limit
	return f.candles, f.err
}

type fakeCache struct {
	points      map[string]int64
	infos       map[string]domain.PlayerInfo
	batched     map[string]int64
	removed     []string
	activeRound int64
	activeSet   int64
	invalidated bool
	readErr     error
	reads       int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		points: make(map[string]int64),
		infos:  make(map[string]domain.PlayerInfo),
	}
}

func (f *fakeCache) SetPoints(_ context.Context, handle string, points int64) error {
	f.points[handle] = points
	return nil
}

func (f *fakeCache) BatchSetPoints(_ context.Context, points map[string]int64) error {
	f.batched = points
	for handle, pts := range points {
		f.points[handle] = pts
	}
	return nil
}

func (f *fakeCache) RemovePlayer(_ context.Context, handle string) error {
	f.removed = append(f.removed, handle)
	delete(f.points, handle)
	delete(f.infos, handle)
	return nil
}

// ordered returns the mirrored handles best first, ties by handle, matching
// the sorted-set traversal order.
func (f *fakeCache) ordered() []string {
	handles := make([]string, 0, len(f.points))
	for handle := range f.points {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool {
		if f.points[handles[i]] != f.points[handles[j]] {
			return f.points[handles[i]] > f.points[handles[j]]
		}
		return handles[i] < handles[j]
	})
	return handles
}

func (f *fakeCache) PointsRank(_ context.Context, handle string) (int64, error) {
	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	for i, h := range f.ordered() {
		if h == handle {
			return int64(i) + 1, nil
		}
	}
	return 0, domain.ErrPlayerNotFound
}

func (f *fakeCache) TopPoints(_ context.Context, n int) ([]domain.PointsStanding, error) {
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	board := make([]domain.PointsStanding, 0, n)
	for i, handle := range f.ordered() {
		if i >= n {
			break
		}
		board = append(board, domain.PointsStanding{
			Position: int64(i) + 1,
			Handle:   handle,
			Points:   f.points[handle],
		})
	}
	return board, nil
}

func (f *fakeCache) SetPlayerInfo(_ context.Context, info domain.PlayerInfo) error {
	f.infos[info.Name] = info
	return nil
}

func (f *fakeCache) GetPlayerInfo(_ context.Context, handle string) (*domain.PlayerInfo, error) {
	info, ok := f.infos[handle]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &info, nil
}

func (f *fakeCache) SetActiveRound(_ context.Context, id int64) error {
	f.activeSet = id
	return nil
}

func (f *fakeCache) ActiveRound(context.Context) (int64, error) {
	if f.activeRound == 0 {
		return 0, errors.New("cache miss")
	}
	return f.activeRound, nil
}

func (f *fakeCache) InvalidateActiveRound(context.Context) error {
	f.invalidated = true
	f.activeRound = 0
	return nil
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, now time.Time) (*GameService, *fakeStore, *fakeFeed, *fakeCache) {
	t.Helper()
	store := newFakeStore()
	feed := &fakeFeed{}
	cache := newFakeCache()
	cfg := config.DefaultConfig()
	svc := NewGameService(store, feed, cache, &cfg.Game, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	svc.now = func() time.Time { return now }
	return svc, store, feed, cache
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func hourlyCandles(start time.Time, n int, firstOpen float64) []pricefeed.Candle {
	out := make([]pricefeed.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := firstOpen + float64(i)*10
		out = append(out, pricefeed.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     open,
			High:     open + 5,
			Low:      open - 5,
			Close:    open + 2,
		})
	}
	return out
}

func TestOpenRound(t *testing.T) {
	now := baseTime.Add(7 * time.Minute)
	svc, store, feed, cache := newTestService(t, now)
	feed.candles = hourlyCandles(baseTime.Add(-24*time.Hour), 25, 99760)

	round, err := svc.OpenRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, baseTime, round.StartAt, "start snaps to the top of the hour")
	assert.Equal(t, baseTime.Add(30*time.Minute), round.ClosedAt)
	assert.Equal(t, baseTime.Add(4*time.Hour), round.TargetAt)
	assert.Equal(t, feed.candles[24].Open, round.BasePrice, "base is the newest candle open")
	assert.Equal(t, baseTime.Add(-24*time.Hour), feed.since)

	chart := store.charts[round.ID]
	require.Len(t, chart.Before, 25)
	assert.Equal(t, feed.candles[0].Open, chart.Before[0].Price)
	assert.Empty(t, chart.After)

	assert.Equal(t, round.ID, cache.activeSet)
}

func TestOpenRoundFeedFailure(t *testing.T) {
	svc, _, feed, _ := newTestService(t, baseTime)
	feed.err = errors.New("exchange unreachable")

	_, err := svc.OpenRound(context.Background())
	assert.ErrorContains(t, err, "exchange unreachable")
}

func TestOpenRoundDuplicateHour(t *testing.T) {
	svc, _, feed, _ := newTestService(t, baseTime)
	feed.candles = hourlyCandles(baseTime.Add(-2*time.Hour), 3, 100000)

	_, err := svc.OpenRound(context.Background())
	require.NoError(t, err)

	_, err = svc.OpenRound(context.Background())
	assert.ErrorIs(t, err, domain.ErrRoundExists)
}

func TestActiveRoundCacheMissThenHit(t *testing.T) {
	svc, _, feed, cache := newTestService(t, baseTime.Add(5*time.Minute))
	feed.candles = hourlyCandles(baseTime.Add(-time.Hour), 2, 100000)

	opened, err := svc.OpenRound(context.Background())
	require.NoError(t, err)

	// Miss path falls back to the store and repopulates the pointer.
	cache.activeRound = 0
	cache.activeSet = 0
	got, err := svc.ActiveRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, opened.ID, got.ID)
	assert.Equal(t, opened.ID, cache.activeSet)

	// Hit path serves straight from the cached id.
	cache.activeRound = opened.ID
	got, err = svc.ActiveRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, opened.ID, got.ID)
}

func TestActiveRoundStalePointer(t *testing.T) {
	svc, _, feed, cache := newTestService(t, baseTime.Add(5*time.Minute))
	feed.candles = hourlyCandles(baseTime.Add(-time.Hour), 2, 100000)

	opened, err := svc.OpenRound(context.Background())
	require.NoError(t, err)

	// Round closed while the pointer was cached.
	svc.now = func() time.Time { return baseTime.Add(45 * time.Minute) }
	cache.activeRound = opened.ID

	_, err = svc.ActiveRound(context.Background())
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
	assert.True(t, cache.invalidated)
}

func submitFixture(t *testing.T, now time.Time) (*GameService, *fakeStore, *domain.Round, *domain.Player) {
	t.Helper()
	svc, store, feed, _ := newTestService(t, now)
	feed.candles = hourlyCandles(baseTime.Add(-time.Hour), 2, 100000)

	round, err := svc.OpenRound(context.Background())
	require.NoError(t, err)
	player, err := svc.RegisterPlayer(context.Background(), "alice", false)
	require.NoError(t, err)
	return svc, store, round, player
}

func TestSubmitPredictionChargesOnce(t *testing.T) {
	svc, store, round, player := submitFixture(t, baseTime.Add(5*time.Minute))
	ctx := context.Background()

	pred, fresh, err := svc.SubmitPrediction(ctx, round.ID, player.UID, domain.ChoiceBullish)
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceBullish, pred.Choice)
	assert.EqualValues(t, 900, store.players[player.UID].Points, "entry cost charged on first submission")
	require.NotNil(t, fresh.PredictionBy("alice"))

	// Changing the choice is free.
	pred, _, err = svc.SubmitPrediction(ctx, round.ID, player.UID, domain.ChoiceBearish)
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceBearish, pred.Choice)
	assert.EqualValues(t, 900, store.players[player.UID].Points)

	// Resubmitting the recorded choice emits no write at all.
	writesBefore := store.writeCalls
	pred, _, err = svc.SubmitPrediction(ctx, round.ID, player.UID, domain.ChoiceBearish)
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceBearish, pred.Choice)
	assert.Equal(t, writesBefore, store.writeCalls)
}

func TestSubmitPredictionAfterClose(t *testing.T) {
	svc, _, round, player := submitFixture(t, baseTime.Add(5*time.Minute))

	svc.now = func() time.Time { return baseTime.Add(31 * time.Minute) }
	_, _, err := svc.SubmitPrediction(context.Background(), round.ID, player.UID, domain.ChoiceBullish)
	assert.ErrorIs(t, err, domain.ErrRoundClosed)
}

func TestSubmitPredictionInvalidChoice(t *testing.T) {
	svc, store, round, player := submitFixture(t, baseTime.Add(5*time.Minute))

	_, _, err := svc.SubmitPrediction(context.Background(), round.ID, player.UID, domain.Choice(9))
	assert.ErrorIs(t, err, domain.ErrInvalidChoice)
	assert.Zero(t, store.writeCalls)
}

func TestSubmitPredictionInsufficientPoints(t *testing.T) {
	svc, store, round, player := submitFixture(t, baseTime.Add(5*time.Minute))
	store.players[player.UID].Points = 40

	_, _, err := svc.SubmitPrediction(context.Background(), round.ID, player.UID, domain.ChoiceNeutral)
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestRoundOverlays(t *testing.T) {
	svc, _, round, player := submitFixture(t, baseTime.Add(5*time.Minute))
	_, _, err := svc.SubmitPrediction(context.Background(), round.ID, player.UID, domain.ChoiceBullish)
	require.NoError(t, err)

	overlays, err := svc.RoundOverlays(context.Background(), round.ID)
	require.NoError(t, err)

	assert.False(t, overlays.BearProjection.Hidden)
	assert.False(t, overlays.BullProjection.Hidden)
	assert.True(t, overlays.Result.Hidden, "no result series before settlement")
	require.NotEmpty(t, overlays.Actual.Points)
	last := overlays.Actual.Points[len(overlays.Actual.Points)-1]
	assert.Equal(t, round.BasePrice, last.Price, "actual series ends at the base price")
}
