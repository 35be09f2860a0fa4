package game

import (
	"context"
	"sync"
	"time"

	"github.com/prediction-game/internal/domain"
)

// Tick is one countdown observation delivered to the ticker callback.
type Tick struct {
	Phase     Phase
	Countdown string
}

// CountdownTicker re-evaluates a round's phase and countdown on a fixed
// interval (nominally one second) and delivers the result to a callback.
// It is owned by the observer's lifecycle: it stops when the surrounding
// context is cancelled, when Stop is called, or on its own once the round it
// watches becomes Settled.
type CountdownTicker struct {
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCountdownTicker creates a ticker. interval <= 0 defaults to one second;
// now may be nil for wall time.
func NewCountdownTicker(interval time.Duration, now func() time.Time) *CountdownTicker {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &CountdownTicker{interval: interval, now: now}
}

// Start begins evaluating round and invoking fn with each tick, including one
// immediate tick so observers never wait a full interval for the first value.
// snapshot is called before every tick so a refreshed round is picked up; it
// may return the same pointer each time for a static snapshot.
func (t *CountdownTicker) Start(ctx context.Context, snapshot func() *domain.Round, fn func(Tick)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.run(ctx, snapshot, fn)
}

// Stop cancels the ticker and waits for the loop to exit. Safe to call more
// than once.
func (t *CountdownTicker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *CountdownTicker) run(ctx context.Context, snapshot func() *domain.Round, fn func(Tick)) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		round := snapshot()
		tick := Tick{
			Phase:     PhaseOf(round, t.now()),
			Countdown: Countdown(round, t.now()),
		}
		fn(tick)

		// Settled rounds never leave Settled; there is nothing left to watch.
		if tick.Phase == PhaseSettled {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
