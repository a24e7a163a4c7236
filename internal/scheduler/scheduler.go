package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hray3182/nudge/internal/models"
)

// Completer records and removes routine completions.
type Completer interface {
	RecordCompletion(ctx context.Context, sourceID string, date civil.Date) error
	RemoveCompletion(ctx context.Context, sourceID string, date civil.Date) error
}

// Dispatcher consumes fired triggers and user actions. Each fired trigger
// is handled on its own goroutine; the planner's per-source lock keeps
// them consistent with concurrent edits.
type Dispatcher struct {
	planner           *Planner
	snoozer           *SnoozeCoordinator
	completer         Completer
	notifier          models.Notifier
	fired             <-chan models.FiredTrigger
	reconcileInterval time.Duration
	retry             RetryPolicy
	notifyCh          chan struct{}
	wg                sync.WaitGroup
	logger            *slog.Logger
}

func NewDispatcher(
	planner *Planner,
	snoozer *SnoozeCoordinator,
	completer Completer,
	notifier models.Notifier,
	fired <-chan models.FiredTrigger,
	reconcileInterval time.Duration,
	retry RetryPolicy,
	logger *slog.Logger,
) *Dispatcher {
	if reconcileInterval <= 0 {
		reconcileInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		planner:           planner,
		snoozer:           snoozer,
		completer:         completer,
		notifier:          notifier,
		fired:             fired,
		reconcileInterval: reconcileInterval,
		retry:             retry,
		notifyCh:          make(chan struct{}, 1),
		logger:            logger,
	}
}

// Notify triggers an immediate reconcile. Non-blocking if one is already pending.
func (d *Dispatcher) Notify() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

// Start restores every source, then serves fired triggers until ctx is
// done. In-flight handlers are waited for before it returns.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started")
	defer d.wg.Wait()

	if n, err := d.planner.RestoreAll(ctx); err != nil {
		d.logger.Warn("restore incomplete", "armed", n, "err", err)
	} else {
		d.logger.Info("sources restored", "armed", n)
	}

	ticker := time.NewTicker(d.reconcileInterval)
	defer ticker.Stop()

	fired := d.fired
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case f, ok := <-fired:
			if !ok {
				fired = nil
				continue
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				if err := d.HandleFired(ctx, f); err != nil {
					d.logger.Error("failed to handle fired trigger",
						"source_id", f.Payload.SourceID, "kind", f.Payload.Kind, "handle", f.Handle, "err", err)
				}
			}()
		case <-ticker.C:
			d.reconcile(ctx)
		case <-d.notifyCh:
			d.reconcile(ctx)
		}
	}
}

func (d *Dispatcher) reconcile(ctx context.Context) {
	n, err := d.planner.Reconcile(ctx)
	if err != nil {
		d.logger.Warn("reconcile incomplete", "healed", n, "err", err)
		return
	}
	if n > 0 {
		d.logger.Info("reconciled sources", "healed", n)
	}
}

// HandleFired presents the reminder for a fired trigger and, once a
// regular occurrence has fully fired, advances the source. Firings that
// were superseded while in flight are dropped.
func (d *Dispatcher) HandleFired(ctx context.Context, fired models.FiredTrigger) error {
	type claim struct {
		src     *models.ReminderSource
		current bool
	}
	c, err := retryTransient(ctx, d.retry, d.planner.metrics, func() (claim, error) {
		src, current, err := d.planner.Claim(ctx, fired)
		return claim{src: src, current: current}, err
	})
	if errors.Is(err, models.ErrNotFound) {
		d.logger.Debug("fired trigger for deleted source", "source_id", fired.Payload.SourceID)
		return nil
	}
	if err != nil {
		return err
	}
	if !c.current {
		d.planner.metrics.StaleFires.Inc()
		d.logger.Debug("dropping superseded trigger", "source_id", fired.Payload.SourceID, "handle", fired.Handle)
		return nil
	}

	d.planner.metrics.TriggersFired.
		WithLabelValues(string(fired.Payload.Kind), strconv.FormatBool(fired.Payload.Snoozed)).Inc()

	on, err := d.planner.prefs.NotificationsEnabledFor(ctx, c.src.Category())
	if err != nil {
		d.logger.Warn("failed to read preferences", "err", err)
		on = true
	}
	if on {
		n := reminderNotification(c.src, fired, d.planner.clock.Location())
		if err := d.notifier.Present(ctx, n); err != nil {
			d.logger.Error("failed to present reminder", "source_id", c.src.SourceID, "kind", fired.Payload.Kind, "err", err)
		}
	}

	if fired.Payload.Snoozed || fired.Payload.Kind != models.StartAlert {
		return nil
	}
	res, err := retryTransient(ctx, d.retry, d.planner.metrics, func() (Result, error) {
		return d.planner.Advance(ctx, c.src.SourceID, fired.Payload.Occurrence)
	})
	if err != nil {
		return fmt.Errorf("failed to advance %s: %w", c.src.SourceID, err)
	}
	d.logger.Debug("source advanced", "source_id", c.src.SourceID, "status", res.Status, "at", res.Occurrence)
	return nil
}

// Snooze repeats a fired reminder after the snooze duration.
func (d *Dispatcher) Snooze(ctx context.Context, req models.SnoozeRequest) (models.ScheduledTrigger, error) {
	return d.snoozer.Snooze(ctx, req)
}

// Complete records a routine as done on date and moves its reminder past
// that day.
func (d *Dispatcher) Complete(ctx context.Context, sourceID string, date civil.Date) (Result, error) {
	_, err := retryTransient(ctx, d.retry, d.planner.metrics, func() (struct{}, error) {
		return struct{}{}, d.completer.RecordCompletion(ctx, sourceID, date)
	})
	if err != nil {
		return Result{}, err
	}

	loc := d.planner.clock.Location()
	endOfDay := time.Date(date.Year, date.Month, date.Day, 23, 59, 0, 0, loc)
	return retryTransient(ctx, d.retry, d.planner.metrics, func() (Result, error) {
		return d.planner.Advance(ctx, sourceID, endOfDay)
	})
}

// Uncomplete removes the completion for date and re-arms the routine from
// now, so a reminder skipped by the completion comes back.
func (d *Dispatcher) Uncomplete(ctx context.Context, sourceID string, date civil.Date) (Result, error) {
	_, err := retryTransient(ctx, d.retry, d.planner.metrics, func() (struct{}, error) {
		return struct{}{}, d.completer.RemoveCompletion(ctx, sourceID, date)
	})
	if err != nil {
		return Result{}, err
	}
	return retryTransient(ctx, d.retry, d.planner.metrics, func() (Result, error) {
		return d.planner.Reschedule(ctx, sourceID)
	})
}
