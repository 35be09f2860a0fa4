package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prediction-game/internal/config"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	readWait = 90 * time.Second

	// Delay before re-dialing after a dropped connection
	reconnectDelay = 5 * time.Second
)

// miniTickerEvent is the subset of the exchange mini-ticker payload we use.
type miniTickerEvent struct {
	EventTime int64  `json:"E"`
	Close     string `json:"c"`
}

// Stream maintains a websocket subscription to the exchange mini-ticker and
// caches the latest trade price. The stream is strictly upstream ingestion:
// API consumers still pull the cached value over plain HTTP.
type Stream struct {
	url    string
	logger *slog.Logger

	mu    sync.RWMutex
	price float64
	at    time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStream creates a live price stream for the configured symbol.
func NewStream(cfg *config.PriceFeedConfig, logger *slog.Logger) *Stream {
	symbol := strings.ToLower(cfg.Symbol)
	return &Stream{
		url:    fmt.Sprintf("%s/%s@miniTicker", cfg.StreamURL, symbol),
		logger: logger,
	}
}

// Start connects and begins consuming ticker events, reconnecting on failure
// until the context is cancelled or Stop is called.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop closes the stream and waits for the reader to exit.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Latest returns the most recent price and its event time. ok is false until
// the first event arrives.
func (s *Stream) Latest() (price float64, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, s.at, !s.at.IsZero()
}

func (s *Stream) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("price stream disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing price stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info("price stream connected", "url", s.url)

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading price stream: %w", err)
		}

		var event miniTickerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("unparseable ticker event", "error", err)
			continue
		}

		price, err := strconv.ParseFloat(event.Close, 64)
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.price = price
		s.at = time.UnixMilli(event.EventTime).UTC()
		s.mu.Unlock()
	}
}
