package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/models"
)

const DefaultSnoozeDuration = 10 * time.Minute

// SourceReader is the read side of Storage.
type SourceReader interface {
	GetSource(ctx context.Context, id string) (*models.ReminderSource, error)
}

// SnoozeCoordinator arms one-shot repeats of fired reminders. It never
// touches the source's regular armed triggers; a snoozed repeat and the
// next regular occurrence fire independently.
type SnoozeCoordinator struct {
	store    SourceReader
	runner   models.TriggerRunner
	clock    clock.Clock
	duration time.Duration
	metrics  *Metrics
	logger   *slog.Logger
}

func NewSnoozeCoordinator(
	store SourceReader,
	runner models.TriggerRunner,
	clk clock.Clock,
	duration time.Duration,
	metrics *Metrics,
	logger *slog.Logger,
) *SnoozeCoordinator {
	if duration <= 0 {
		duration = DefaultSnoozeDuration
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnoozeCoordinator{
		store:    store,
		runner:   runner,
		clock:    clk,
		duration: duration,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *SnoozeCoordinator) Snooze(ctx context.Context, req models.SnoozeRequest) (models.ScheduledTrigger, error) {
	if _, ok := models.ParseTriggerKind(string(req.Kind)); !ok {
		return models.ScheduledTrigger{}, fmt.Errorf("snooze %s: unknown trigger kind %q", req.SourceID, req.Kind)
	}
	if _, err := s.store.GetSource(ctx, req.SourceID); err != nil {
		return models.ScheduledTrigger{}, fmt.Errorf("failed to load source %s: %w", req.SourceID, err)
	}

	d := req.Duration
	if d <= 0 {
		d = s.duration
	}
	now := s.clock.Now()
	at := now.Add(d)
	occ := req.Occurrence
	if occ.IsZero() {
		occ = at
	}

	payload := models.TriggerPayload{
		SourceID:   req.SourceID,
		Kind:       req.Kind,
		Occurrence: occ,
		Snoozed:    true,
	}
	h, err := s.runner.Arm(ctx, at, payload)
	if err != nil {
		return models.ScheduledTrigger{}, fmt.Errorf("failed to arm snooze: %w", err)
	}

	s.metrics.Snoozes.WithLabelValues(string(req.Kind)).Inc()
	s.logger.Info("reminder snoozed", "source_id", req.SourceID, "kind", req.Kind, "at", at)
	return models.ScheduledTrigger{
		SourceID:   req.SourceID,
		Kind:       req.Kind,
		TargetAt:   at,
		Occurrence: occ,
		Handle:     h,
		Snoozed:    true,
		ArmedAt:    now,
	}, nil
}
