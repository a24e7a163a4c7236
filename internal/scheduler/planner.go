package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

// Storage is the persistence the planner needs: sources and the armed
// trigger record per (source, kind).
type Storage interface {
	GetSource(ctx context.Context, id string) (*models.ReminderSource, error)
	ListSources(ctx context.Context) ([]*models.ReminderSource, error)
	PutSource(ctx context.Context, src *models.ReminderSource) error
	DeleteSource(ctx context.Context, id string) error

	UpsertArmedTrigger(ctx context.Context, t *models.ScheduledTrigger) error
	GetArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) (*models.ScheduledTrigger, error)
	DeleteArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) error
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	// StatusDormant: the rule has no occurrence after the reference.
	StatusDormant Status = "dormant"
	// StatusDisabled: the source itself is switched off.
	StatusDisabled Status = "disabled"
	// StatusMuted: notifications for the source's category are off.
	StatusMuted Status = "muted"
)

// Result describes what a reschedule left armed.
type Result struct {
	SourceID   string
	Status     Status
	Occurrence time.Time
	Triggers   []models.ScheduledTrigger
}

// Planner turns a source's next occurrence into armed runner tasks. Every
// operation on a source runs under that source's lock and cancels what is
// armed before arming anything new.
type Planner struct {
	store   Storage
	runner  models.TriggerRunner
	prefs   models.PreferenceProvider
	clock   clock.Clock
	locks   *sourceLocks
	metrics *Metrics
	logger  *slog.Logger
}

func NewPlanner(
	store Storage,
	runner models.TriggerRunner,
	prefs models.PreferenceProvider,
	clk clock.Clock,
	metrics *Metrics,
	logger *slog.Logger,
) *Planner {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		store:   store,
		runner:  runner,
		prefs:   prefs,
		clock:   clk,
		locks:   newSourceLocks(),
		metrics: metrics,
		logger:  logger,
	}
}

// Reschedule re-arms the source from its next occurrence after now.
func (p *Planner) Reschedule(ctx context.Context, sourceID string) (Result, error) {
	unlock := p.locks.lock(sourceID)
	defer unlock()

	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	return p.plan(ctx, src, p.clock.Now())
}

// Advance re-arms the source from its next occurrence after the later of
// now and after. Used once an occurrence has fired or been completed.
func (p *Planner) Advance(ctx context.Context, sourceID string, after time.Time) (Result, error) {
	unlock := p.locks.lock(sourceID)
	defer unlock()

	src, err := p.store.GetSource(ctx, sourceID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	return p.plan(ctx, src, after)
}

// Cancel disarms every trigger of the source. Unknown or already fired
// handles are not an error.
func (p *Planner) Cancel(ctx context.Context, sourceID string) error {
	unlock := p.locks.lock(sourceID)
	defer unlock()
	return p.disarm(ctx, sourceID)
}

// Remove disarms the source and deletes it in one locked step, so a
// concurrent advance cannot re-arm a source that is going away.
func (p *Planner) Remove(ctx context.Context, sourceID string) error {
	unlock := p.locks.lock(sourceID)
	defer unlock()

	if err := p.disarm(ctx, sourceID); err != nil {
		return err
	}
	if err := p.store.DeleteSource(ctx, sourceID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to delete source %s: %w", sourceID, err)
	}
	return nil
}

// RestoreAll reschedules every source. The runner keeps no state across
// restarts, so this runs on start. Failures are collected and the rest of
// the sources are still processed.
func (p *Planner) RestoreAll(ctx context.Context) (int, error) {
	sources, err := p.store.ListSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sources: %w", err)
	}

	var (
		armed int
		errs  []error
	)
	for _, src := range sources {
		res, err := p.Reschedule(ctx, src.SourceID)
		if err != nil {
			p.logger.Warn("restore failed", "source_id", src.SourceID, "err", err)
			errs = append(errs, err)
			continue
		}
		if res.Status == StatusScheduled {
			armed++
		}
	}
	return armed, errors.Join(errs...)
}

// Reconcile reschedules enabled sources that have nothing armed, which
// heals arms lost to exhausted storage retries.
func (p *Planner) Reconcile(ctx context.Context) (int, error) {
	sources, err := p.store.ListSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sources: %w", err)
	}

	now := p.clock.Now()
	var (
		healed int
		errs   []error
	)
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		if src.Rule.Freq == rrule.None && !src.Rule.At.After(now) {
			continue
		}
		armed, err := p.hasArmed(ctx, src.SourceID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if armed {
			continue
		}
		res, err := p.Reschedule(ctx, src.SourceID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Status == StatusScheduled {
			p.logger.Info("re-armed source without triggers", "source_id", src.SourceID, "at", res.Occurrence)
			healed++
		}
	}
	return healed, errors.Join(errs...)
}

// Claim checks a fired trigger against the armed record and consumes the
// record. It returns false for a firing that was cancelled or replaced
// while in flight. Snoozed firings are never recorded and always match.
func (p *Planner) Claim(ctx context.Context, fired models.FiredTrigger) (*models.ReminderSource, bool, error) {
	id := fired.Payload.SourceID
	unlock := p.locks.lock(id)
	defer unlock()

	src, err := p.store.GetSource(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load source %s: %w", id, err)
	}
	if fired.Payload.Snoozed {
		return src, true, nil
	}

	armed, err := p.store.GetArmedTrigger(ctx, id, fired.Payload.Kind)
	if errors.Is(err, models.ErrNotFound) {
		return src, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load armed trigger: %w", err)
	}
	if armed.Handle != fired.Handle {
		return src, false, nil
	}
	if err := p.store.DeleteArmedTrigger(ctx, id, fired.Payload.Kind); err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to consume armed trigger: %w", err)
	}
	return src, true, nil
}

func (p *Planner) hasArmed(ctx context.Context, sourceID string) (bool, error) {
	for _, kind := range models.TriggerKinds {
		_, err := p.store.GetArmedTrigger(ctx, sourceID, kind)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return false, fmt.Errorf("failed to load armed trigger: %w", err)
		}
	}
	return false, nil
}

// plan must be called with the source lock held.
func (p *Planner) plan(ctx context.Context, src *models.ReminderSource, ref time.Time) (Result, error) {
	now := p.clock.Now()
	if ref.Before(now) {
		ref = now
	}

	if err := p.disarm(ctx, src.SourceID); err != nil {
		return Result{}, err
	}

	res := Result{SourceID: src.SourceID}
	if !src.Enabled {
		res.Status = StatusDisabled
		return res, nil
	}

	on, err := p.prefs.NotificationsEnabledFor(ctx, src.Category())
	if err != nil {
		return Result{}, fmt.Errorf("failed to read preferences: %w", err)
	}
	if !on {
		res.Status = StatusMuted
		return res, nil
	}

	occ, err := rrule.NextOccurrence(src.Rule, ref, p.clock.Location())
	if errors.Is(err, rrule.ErrNoFutureOccurrence) {
		p.metrics.DormantSources.Inc()
		p.logger.Debug("no future occurrence", "source_id", src.SourceID)
		res.Status = StatusDormant
		return res, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve next occurrence of %s: %w", src.SourceID, err)
	}
	res.Occurrence = occ

	if !src.IsRoutine() {
		lead, err := p.leadMinutes(ctx, src)
		if err != nil {
			return Result{}, err
		}
		if lead > 0 {
			leadAt := occ.Add(-time.Duration(lead) * time.Minute)
			if leadAt.After(now) {
				t, err := p.arm(ctx, src.SourceID, models.LeadReminder, leadAt, occ)
				if err != nil {
					return Result{}, err
				}
				res.Triggers = append(res.Triggers, t)
			} else {
				p.logger.Debug("lead reminder already past", "source_id", src.SourceID, "at", leadAt)
			}
		}
	}

	if occ.After(now) {
		t, err := p.arm(ctx, src.SourceID, models.StartAlert, occ, occ)
		if err != nil {
			return Result{}, err
		}
		res.Triggers = append(res.Triggers, t)
	}

	res.Status = StatusScheduled
	return res, nil
}

func (p *Planner) leadMinutes(ctx context.Context, src *models.ReminderSource) (int, error) {
	if src.LeadMinutes != nil {
		return *src.LeadMinutes, nil
	}
	lead, err := p.prefs.DefaultLeadMinutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read default lead: %w", err)
	}
	return lead, nil
}

// disarm cancels then forgets each armed trigger of the source. A record
// is only deleted after its runner task is known to be gone.
func (p *Planner) disarm(ctx context.Context, sourceID string) error {
	for _, kind := range models.TriggerKinds {
		armed, err := p.store.GetArmedTrigger(ctx, sourceID, kind)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load armed %s trigger: %w", kind, err)
		}

		if err := p.runner.Cancel(ctx, armed.Handle); err != nil {
			if !errors.Is(err, models.ErrStaleHandle) {
				return fmt.Errorf("failed to cancel %s trigger: %w", kind, err)
			}
			p.logger.Debug("armed trigger already gone", "source_id", sourceID, "kind", kind, "handle", armed.Handle)
		} else {
			p.metrics.TriggersCancelled.WithLabelValues(string(kind)).Inc()
		}

		if err := p.store.DeleteArmedTrigger(ctx, sourceID, kind); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to clear %s trigger: %w", kind, err)
		}
	}
	return nil
}

func (p *Planner) arm(ctx context.Context, sourceID string, kind models.TriggerKind, at, occ time.Time) (models.ScheduledTrigger, error) {
	payload := models.TriggerPayload{SourceID: sourceID, Kind: kind, Occurrence: occ}
	h, err := p.runner.Arm(ctx, at, payload)
	if err != nil {
		return models.ScheduledTrigger{}, fmt.Errorf("failed to arm %s trigger: %w", kind, err)
	}

	t := models.ScheduledTrigger{
		SourceID:   sourceID,
		Kind:       kind,
		TargetAt:   at,
		Occurrence: occ,
		Handle:     h,
		ArmedAt:    p.clock.Now(),
	}
	if err := p.store.UpsertArmedTrigger(ctx, &t); err != nil {
		// Without a record nothing could cancel the task later.
		if cerr := p.runner.Cancel(ctx, h); cerr != nil && !errors.Is(cerr, models.ErrStaleHandle) {
			p.logger.Warn("failed to take back unrecorded trigger", "source_id", sourceID, "handle", h, "err", cerr)
		}
		return models.ScheduledTrigger{}, fmt.Errorf("failed to record %s trigger: %w", kind, err)
	}

	p.metrics.TriggersArmed.WithLabelValues(string(kind)).Inc()
	p.logger.Debug("trigger armed", "source_id", sourceID, "kind", kind, "at", at, "handle", h)
	return t, nil
}
