package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-game/internal/domain"
)

func sample(ts time.Time, price float64) domain.PriceSample {
	return domain.PriceSample{Timestamp: ts.UnixMilli(), Price: price}
}

func TestBuildOverlays_ActiveRound(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := domain.ChartSeries{
		sample(start.Add(-2*time.Hour), 99800),
		sample(start.Add(-time.Hour), 99950),
		sample(start, 100000),
	}

	o := BuildOverlays(100000, start, before, nil)

	assert.Equal(t, before, o.Actual.Points)
	assert.False(t, o.Actual.Hidden)

	require.Len(t, o.BearProjection.Points, 2)
	require.Len(t, o.BullProjection.Points, 2)
	assert.False(t, o.BearProjection.Hidden)
	assert.False(t, o.BullProjection.Hidden)

	horizon := start.Add(4 * time.Hour).UnixMilli()
	assert.Equal(t, start.UnixMilli(), o.BearProjection.Points[0].Timestamp)
	assert.InDelta(t, 100000, o.BearProjection.Points[0].Price, 1e-9)
	assert.Equal(t, horizon, o.BearProjection.Points[1].Timestamp)
	assert.InDelta(t, 99700, o.BearProjection.Points[1].Price, 1e-9)
	assert.InDelta(t, 100300, o.BullProjection.Points[1].Price, 1e-9)

	assert.True(t, o.Result.Hidden)
	assert.Empty(t, o.Result.Points)
}

func TestBuildOverlays_SettledRound(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	after := domain.ChartSeries{
		sample(start.Add(time.Hour), 100100),
		sample(start.Add(4*time.Hour), 100500),
	}

	o := BuildOverlays(100000, start, domain.ChartSeries{sample(start, 100000)}, after)

	assert.True(t, o.BearProjection.Hidden, "projections hide once settled")
	assert.True(t, o.BullProjection.Hidden)

	assert.False(t, o.Result.Hidden)
	require.Len(t, o.Result.Points, 3)
	assert.Equal(t, start.UnixMilli(), o.Result.Points[0].Timestamp)
	assert.InDelta(t, 100000, o.Result.Points[0].Price, 1e-9)
	assert.Equal(t, after[0], o.Result.Points[1])
	assert.Equal(t, after[1], o.Result.Points[2])
}

func TestBuildOverlays_EmptyBeforeIsNotAnError(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o := BuildOverlays(100000, start, nil, nil)

	assert.NotNil(t, o.Actual.Points)
	assert.Empty(t, o.Actual.Points)
	require.Len(t, o.BearProjection.Points, 2)
}
