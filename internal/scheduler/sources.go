package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hray3182/nudge/internal/models"
)

// SourceManager applies create/update/delete to sources and keeps their
// armed triggers in step. Transient storage failures are retried.
type SourceManager struct {
	store    Storage
	planner  *Planner
	validate *validator.Validate
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewSourceManager(store Storage, planner *Planner, retry RetryPolicy, logger *slog.Logger) *SourceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceManager{
		store:    store,
		planner:  planner,
		validate: validator.New(),
		retry:    retry,
		logger:   logger,
	}
}

// Create stores a new source and arms it. A malformed rule, such as a
// weekly rule without days, is rejected before anything is written.
func (m *SourceManager) Create(ctx context.Context, src *models.ReminderSource) (Result, error) {
	if src.SourceID == "" {
		src.SourceID = uuid.NewString()
	}
	now := m.planner.clock.Now()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	if err := m.check(src); err != nil {
		return Result{}, err
	}
	if err := m.put(ctx, src); err != nil {
		return Result{}, err
	}
	m.logger.Info("source created", "source_id", src.SourceID, "kind", src.Kind)
	return m.reschedule(ctx, src.SourceID)
}

// Update replaces an existing source and re-arms it from its new rule.
func (m *SourceManager) Update(ctx context.Context, src *models.ReminderSource) (Result, error) {
	existing, err := m.get(ctx, src.SourceID)
	if err != nil {
		return Result{}, err
	}
	src.CreatedAt = existing.CreatedAt
	src.UpdatedAt = m.planner.clock.Now()

	if err := m.check(src); err != nil {
		return Result{}, err
	}
	if err := m.put(ctx, src); err != nil {
		return Result{}, err
	}
	return m.reschedule(ctx, src.SourceID)
}

// SetEnabled switches a source on or off. A disabled source keeps its
// data but has nothing armed.
func (m *SourceManager) SetEnabled(ctx context.Context, id string, enabled bool) (Result, error) {
	src, err := m.get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	src.Enabled = enabled
	src.UpdatedAt = m.planner.clock.Now()
	if err := m.put(ctx, src); err != nil {
		return Result{}, err
	}
	return m.reschedule(ctx, id)
}

// Delete cancels the source's triggers and removes it with its history.
func (m *SourceManager) Delete(ctx context.Context, id string) error {
	_, err := retryTransient(ctx, m.retry, m.planner.metrics, func() (struct{}, error) {
		return struct{}{}, m.planner.Remove(ctx, id)
	})
	if err != nil {
		return err
	}
	m.logger.Info("source deleted", "source_id", id)
	return nil
}

// ReplanDefaultLead re-arms the enabled schedule events that take their
// lead time from the preference default, after that default changed.
func (m *SourceManager) ReplanDefaultLead(ctx context.Context) (int, error) {
	sources, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, src := range sources {
		if src.IsRoutine() || src.LeadMinutes != nil || !src.Enabled {
			continue
		}
		if _, err := m.reschedule(ctx, src.SourceID); err != nil {
			m.logger.Warn("replan failed", "source_id", src.SourceID, "err", err)
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (m *SourceManager) Get(ctx context.Context, id string) (*models.ReminderSource, error) {
	return m.get(ctx, id)
}

func (m *SourceManager) List(ctx context.Context) ([]*models.ReminderSource, error) {
	return retryTransient(ctx, m.retry, m.planner.metrics, func() ([]*models.ReminderSource, error) {
		return m.store.ListSources(ctx)
	})
}

func (m *SourceManager) check(src *models.ReminderSource) error {
	if err := m.validate.Struct(src); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if err := src.Rule.Validate(); err != nil {
		return fmt.Errorf("invalid recurrence: %w", err)
	}
	return nil
}

func (m *SourceManager) get(ctx context.Context, id string) (*models.ReminderSource, error) {
	return retryTransient(ctx, m.retry, m.planner.metrics, func() (*models.ReminderSource, error) {
		return m.store.GetSource(ctx, id)
	})
}

func (m *SourceManager) put(ctx context.Context, src *models.ReminderSource) error {
	_, err := retryTransient(ctx, m.retry, m.planner.metrics, func() (struct{}, error) {
		return struct{}{}, m.store.PutSource(ctx, src)
	})
	if err != nil {
		return fmt.Errorf("failed to store source %s: %w", src.SourceID, err)
	}
	return nil
}

func (m *SourceManager) reschedule(ctx context.Context, id string) (Result, error) {
	return retryTransient(ctx, m.retry, m.planner.metrics, func() (Result, error) {
		return m.planner.Reschedule(ctx, id)
	})
}
