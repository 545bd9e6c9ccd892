package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"royalty-engine/internal/audit"
	royalty "royalty-engine/internal/royalty/domain"
)

// PendingCalculator calculates uncalculated plays in a window.
type PendingCalculator interface {
	CalculatePending(ctx context.Context, from, to time.Time, pageSize int, actor audit.ActorID) (royalty.BatchResult, error)
}

// CycleLister lists cycles by status.
type CycleLister interface {
	List(ctx context.Context, status royalty.CycleStatus) ([]royalty.RoyaltyCycle, error)
}

// Scheduler calculates pending plays of every open cycle once a day.
type Scheduler struct {
	calc      PendingCalculator
	cycles    CycleLister
	dailyAt   string
	batchSize int
	logger    *zap.Logger
}

// NewScheduler constructs a Scheduler firing at dailyAt (HH:MM, UTC).
func NewScheduler(calc PendingCalculator, cycles CycleLister, dailyAt string, batchSize int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		calc:      calc,
		cycles:    cycles,
		dailyAt:   dailyAt,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.calc == nil || s.cycles == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now) {
				continue
			}
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	now = now.UTC()
	return now.Hour() == hour && now.Minute() == minute
}

// RunOnce calculates pending plays for each open cycle window.
func (s *Scheduler) RunOnce(ctx context.Context) {
	cycles, err := s.cycles.List(ctx, royalty.CycleOpen)
	if err != nil {
		s.logger.Error("schedule list cycles failed", zap.String("event", "schedule.run"), zap.Error(err))
		return
	}
	for _, cycle := range cycles {
		from, to := cycle.Window()
		result, err := s.calc.CalculatePending(ctx, from, to, s.batchSize, audit.System)
		if err != nil {
			s.logger.Error("schedule calculation failed",
				zap.String("event", "schedule.run"),
				zap.String("cycle_id", cycle.ID),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("schedule calculation done",
			zap.String("event", "schedule.run"),
			zap.String("cycle_id", cycle.ID),
			zap.Int("succeeded", result.SuccessfulCalculations),
			zap.Int("failed", len(result.Errors)),
		)
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
