package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
)

// Candle is one OHLCV bar from the upstream exchange.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Client fetches candle data over the exchange REST API.
type Client struct {
	baseURL  string
	symbol   string
	interval string
	http     *http.Client
}

// NewClient creates a price feed client.
func NewClient(cfg *config.PriceFeedConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		symbol:   cfg.Symbol,
		interval: cfg.Interval,
		http:     &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Candles fetches up to limit candles starting at since.
func (c *Client) Candles(ctx context.Context, since time.Time, limit int) ([]Candle, error) {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	q.Set("interval", c.interval)
	q.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building klines request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request failed: status %d", resp.StatusCode)
	}

	// Each kline is a mixed array: open time is a number, prices are strings.
	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(k []any) (Candle, error) {
	if len(k) < 6 {
		return Candle{}, fmt.Errorf("malformed kline: %d fields", len(k))
	}

	openTime, ok := k[0].(float64)
	if !ok {
		return Candle{}, fmt.Errorf("malformed kline open time: %T", k[0])
	}

	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := k[i].(string)
		if !ok {
			return Candle{}, fmt.Errorf("malformed kline field %d: %T", i, k[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("parsing kline field %d: %w", i, err)
		}
		fields[i-1] = v
	}

	return Candle{
		OpenTime: time.UnixMilli(int64(openTime)).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}

// OpenSeries converts candles into the (open time, open price) chart samples
// the round chart is drawn from.
func OpenSeries(candles []Candle) domain.ChartSeries {
	series := make(domain.ChartSeries, 0, len(candles))
	for _, c := range candles {
		series = append(series, domain.PriceSample{Timestamp: c.OpenTime.UnixMilli(), Price: c.Open})
	}
	return series
}
