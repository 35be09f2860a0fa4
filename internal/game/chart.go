package game

import (
	"time"

	"github.com/prediction-game/internal/domain"
)

// OverlaySeries is one drawable series plus its visibility flag.
type OverlaySeries struct {
	Points domain.ChartSeries `json:"points"`
	Hidden bool               `json:"hidden"`
}

// ChartOverlays holds the four series a round chart is drawn from.
type ChartOverlays struct {
	Actual         OverlaySeries `json:"actual"`
	BearProjection OverlaySeries `json:"bear_projection"`
	BullProjection OverlaySeries `json:"bull_projection"`
	Result         OverlaySeries `json:"result"`
}

// BuildOverlays assembles the chart series for a round from its base price,
// start time and raw before/after samples.
//
// Actual is the before series unchanged; an empty before means "no data yet",
// not an error. The two projections run from (start_at, base) to the
// threshold endpoints four hours out and are hidden once the round is settled
// (after is non-empty). Result prepends (start_at, base) to the after series
// and is visible only when settled.
func BuildOverlays(basePrice float64, startAt time.Time, before, after domain.ChartSeries) ChartOverlays {
	settled := len(after) > 0

	base := domain.PriceSample{Timestamp: startAt.UnixMilli(), Price: basePrice}
	horizon := startAt.Add(ProjectionHorizon).UnixMilli()

	bear := domain.ChartSeries{base, {Timestamp: horizon, Price: BearTarget(basePrice)}}
	bull := domain.ChartSeries{base, {Timestamp: horizon, Price: BullTarget(basePrice)}}

	result := domain.ChartSeries{}
	if settled {
		result = append(domain.ChartSeries{base}, after...)
	}

	actual := before
	if actual == nil {
		actual = domain.ChartSeries{}
	}

	return ChartOverlays{
		Actual:         OverlaySeries{Points: actual},
		BearProjection: OverlaySeries{Points: bear, Hidden: settled},
		BullProjection: OverlaySeries{Points: bull, Hidden: settled},
		Result:         OverlaySeries{Points: result, Hidden: !settled},
	}
}
