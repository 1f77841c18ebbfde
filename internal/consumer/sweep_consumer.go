package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/laraveldev/tg-bot/internal/config"
	"github.com/laraveldev/tg-bot/internal/domain"
	"github.com/laraveldev/tg-bot/internal/evaluator"
	"github.com/laraveldev/tg-bot/internal/service"
)

// Sweeper one reminder/overdue pass
type Sweeper interface {
	Run(ctx context.Context, now time.Time) (evaluator.SweepResult, error)
}

// DailyBuilder builds today's schedule of every active shift
type DailyBuilder interface {
	BuildTodayForActiveShifts(ctx context.Context) ([]*domain.Schedule, error)
}

// Locker cross-replica mutual exclusion for a tick
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepConsumer drives the periodic sweep and the daily schedule build
type SweepConsumer struct {
	config  config.LunchConfig
	sweeper Sweeper
	builder DailyBuilder
	lock    Locker // nil runs unguarded
	clock   service.Clock
	logger  *zap.Logger

	buildAt domain.ClockTime
	mu      sync.Mutex
	builtOn time.Time // date of the last successful daily build
}

// NewSweepConsumer validates DailyBuildAt; lock may be nil
func NewSweepConsumer(
	cfg config.LunchConfig,
	sweeper Sweeper,
	builder DailyBuilder,
	lock Locker,
	clock service.Clock,
	logger *zap.Logger,
) (*SweepConsumer, error) {
	buildAt, err := domain.ParseClockTime(cfg.DailyBuildAt)
	if err != nil {
		return nil, fmt.Errorf("invalid daily build time: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &SweepConsumer{
		config:  cfg,
		sweeper: sweeper,
		builder: builder,
		lock:    lock,
		clock:   clock,
		logger:  logger,
		buildAt: buildAt,
	}, nil
}

// Start runs a tick immediately and then every SweepInterval until ctx is done
func (c *SweepConsumer) Start(ctx context.Context) error {
	c.logger.Info("Sweep consumer started",
		zap.Duration("interval", c.config.SweepInterval),
		zap.String("daily_build_at", c.buildAt.String()),
	)

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	if err := c.Tick(ctx); err != nil {
		c.logger.Error("Failed to run sweep on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Sweep consumer stopped")
			return nil
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("Failed to run sweep", zap.Error(err))
			}
		}
	}
}

// Tick one guarded pass: sweep, then the daily build once it is due.
// When the lock backend is unreachable the pass runs unlocked; the per-break
// claims still keep overlapping replicas from notifying twice.
func (c *SweepConsumer) Tick(ctx context.Context) error {
	if c.lock != nil {
		ok, err := c.lock.Acquire(ctx)
		switch {
		case err != nil:
			c.logger.Warn("Sweep lock unavailable, running unlocked", zap.Error(err))
		case !ok:
			c.logger.Debug("Sweep lock held elsewhere, skipping tick")
			return nil
		default:
			defer func() {
				if err := c.lock.Release(context.WithoutCancel(ctx)); err != nil {
					c.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	now := c.clock.Now()
	if _, err := c.sweeper.Run(ctx, now); err != nil {
		c.logger.Error("Sweep pass incomplete", zap.Error(err))
	}
	return c.buildIfDue(ctx, now)
}

func (c *SweepConsumer) buildIfDue(ctx context.Context, now time.Time) error {
	today := domain.DateOf(now)
	c.mu.Lock()
	done := c.builtOn.Equal(today)
	c.mu.Unlock()
	if done || domain.ClockOf(now) < c.buildAt {
		return nil
	}

	schedules, err := c.builder.BuildTodayForActiveShifts(ctx)
	if err != nil {
		return fmt.Errorf("daily schedule build: %w", err)
	}
	c.mu.Lock()
	c.builtOn = today
	c.mu.Unlock()
	c.logger.Info("Daily lunch schedules ready",
		zap.String("date", today.Format("2006-01-02")),
		zap.Int("schedules", len(schedules)),
	)
	return nil
}
