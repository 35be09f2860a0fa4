package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prediction-game/internal/config"
	"github.com/prediction-game/internal/domain"
)

// Rounds is the slice of the game the scheduler drives: opening the hourly
// round and settling everything past its target.
type Rounds interface {
	OpenRound(ctx context.Context) (*domain.Round, error)
	SettleDue(ctx context.Context) ([]int64, error)
}

// Scheduler drives the round lifecycle: it opens a fresh round at the top of
// every hour and sweeps for settlement on a fixed interval.
type Scheduler struct {
	rounds  Rounds
	config  *config.SchedulerConfig
	logger  *slog.Logger
	now     func() time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler
func NewScheduler(rounds Rounds, cfg *config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		rounds: rounds,
		config: cfg,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background lifecycle loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "settle_interval", s.config.SettleInterval)

	go s.run(ctx)
	return nil
}

// Stop stops the background lifecycle loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// run is the main scheduler loop. The open timer is re-armed after every fire
// rather than using a ticker, so it stays aligned to the wall-clock hour even
// if a cycle runs long.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	// Catch up on anything that came due while we were down, and make sure
	// the current hour has a round.
	s.openCycle(ctx)
	s.settleCycle(ctx)

	openTimer := time.NewTimer(s.untilNextHour())
	defer openTimer.Stop()

	settleTicker := time.NewTicker(s.config.SettleInterval)
	defer settleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-openTimer.C:
			s.openCycle(ctx)
			openTimer.Reset(s.untilNextHour())
		case <-settleTicker.C:
			s.settleCycle(ctx)
		}
	}
}

func (s *Scheduler) untilNextHour() time.Duration {
	now := s.now()
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}

func (s *Scheduler) openCycle(ctx context.Context) {
	round, err := s.rounds.OpenRound(ctx)
	if err != nil {
		// Another instance already opened this hour's round.
		if errors.Is(err, domain.ErrRoundExists) {
			s.logger.Debug("round already open for this hour")
			return
		}
		s.logger.Error("failed to open round", "error", err)
		return
	}
	s.logger.Info("opened round", "round_id", round.ID, "start_at", round.StartAt)
}

func (s *Scheduler) settleCycle(ctx context.Context) {
	settled, err := s.rounds.SettleDue(ctx)
	if err != nil {
		s.logger.Error("settlement sweep had failures", "error", err, "settled", len(settled))
		return
	}
	if len(settled) > 0 {
		s.logger.Info("settlement sweep completed", "settled", len(settled))
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce runs a single open+settle cycle (useful for manual triggers)
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.openCycle(ctx)
	s.settleCycle(ctx)
}
