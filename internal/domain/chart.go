package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PriceSample is one (timestamp, price) observation. On the wire it is the
// two-element array [unix_ms, price] the chart consumers expect.
type PriceSample struct {
	Timestamp int64   // unix milliseconds
	Price     float64
}

// Time returns the sample timestamp as a time.Time.
func (s PriceSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// MarshalJSON encodes the sample as [timestamp, price].
func (s PriceSample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(s.Timestamp), s.Price})
}

// UnmarshalJSON decodes a [timestamp, price] pair.
func (s *PriceSample) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding price sample: %w", err)
	}
	s.Timestamp = int64(pair[0])
	s.Price = pair[1]
	return nil
}

// ChartSeries is a chronological sequence of price samples.
type ChartSeries []PriceSample

// ChartData is a round's chart sub-resource: samples up to the base time and,
// once settled, samples from base time through settlement.
type ChartData struct {
	Before ChartSeries `json:"before"`
	After  ChartSeries `json:"after"`
}
