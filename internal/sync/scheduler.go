package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"ordersync/internal/util"

	"go.uber.org/zap"
)

// Trigger identifies what caused a sync pass.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerOnline  Trigger = "online"
	TriggerVisible Trigger = "visible"
	TriggerManual  Trigger = "manual"
	TriggerTimer   Trigger = "timer"
)

// ErrPassInFlight is returned to a trigger that fires while a pass is
// already running. The trigger is dropped, not queued; still-dirty state is
// picked up by the next scheduled pass.
var ErrPassInFlight = errors.New("sync pass already in flight")

// Scheduler decides when the engine runs and guarantees at most one pass is
// in flight. Passes are not cancelled mid-flight; they are bounded by the
// remote client's HTTP timeout.
type Scheduler struct {
	engine       *Engine
	interval     time.Duration
	fastInterval time.Duration
	logger       *zap.Logger

	inFlight atomic.Bool
	fastMode atomic.Bool
	kick     chan Trigger
	reset    chan struct{}
}

// NewScheduler creates a scheduler with the given periodic fallback interval
// and the shortened interval used while an override session is active.
func NewScheduler(engine *Engine, interval, fastInterval time.Duration) *Scheduler {
	return &Scheduler{
		engine:       engine,
		interval:     interval,
		fastInterval: fastInterval,
		logger:       util.GetLogger(),
		kick:         make(chan Trigger, 1),
		reset:        make(chan struct{}, 1),
	}
}

// Run drives the periodic timer and the external triggers until ctx is
// cancelled. It performs a startup pass first.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.runPass(ctx, TriggerStartup); err != nil && !errors.Is(err, ErrPassInFlight) {
		s.logger.Warn("Startup sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			ticker.Reset(s.currentInterval())
		case <-ticker.C:
			if err := s.runPass(ctx, TriggerTimer); err != nil && !errors.Is(err, ErrPassInFlight) {
				s.logger.Warn("Periodic sync failed", zap.Error(err))
			}
		case trigger := <-s.kick:
			if err := s.runPass(ctx, trigger); err != nil && !errors.Is(err, ErrPassInFlight) {
				s.logger.Warn("Triggered sync failed",
					zap.String("trigger", string(trigger)), zap.Error(err))
			}
		}
	}
}

// Notify requests a pass for an external trigger (reconnect, visibility
// regain). Non-blocking: if a request is already queued the new one is
// dropped.
func (s *Scheduler) Notify(trigger Trigger) {
	select {
	case s.kick <- trigger:
	default:
		util.SyncTriggersDroppedTotal.Inc()
	}
}

// TriggerManual runs a pass synchronously on the caller's goroutine and
// returns its error, so an explicit user-requested sync can surface
// failures. Subject to the same single-flight guard.
func (s *Scheduler) TriggerManual(ctx context.Context) error {
	return s.runPass(ctx, TriggerManual)
}

// SetFastMode shortens (or restores) the periodic interval, e.g. while an
// administrative override session is active.
func (s *Scheduler) SetFastMode(on bool) {
	s.fastMode.Store(on)
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	if s.fastMode.Load() {
		return s.fastInterval
	}
	return s.interval
}

// runPass is the single-flight gate around the engine. An overlapping
// trigger is a no-op.
func (s *Scheduler) runPass(ctx context.Context, trigger Trigger) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		util.SyncTriggersDroppedTotal.Inc()
		s.logger.Debug("Sync trigger dropped, pass in flight",
			zap.String("trigger", string(trigger)))
		return ErrPassInFlight
	}
	defer s.inFlight.Store(false)

	s.logger.Info("Sync pass started", zap.String("trigger", string(trigger)))
	return s.engine.RunPass(ctx)
}
