package repository

import (
	"context"
	"errors"

	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/models"
)

// PreferencesRepository stores the single preferences row and serves it
// as a models.PreferenceProvider.
type PreferencesRepository struct {
	db          database.DBTX
	defaultLead int
}

func NewPreferencesRepository(db database.DBTX, defaultLead int) *PreferencesRepository {
	return &PreferencesRepository{db: db, defaultLead: defaultLead}
}

// GetOrCreatePreferences returns the preferences, creating the row with
// defaults on first use. Reads of an existing row write nothing.
func (r *PreferencesRepository) GetOrCreatePreferences(ctx context.Context) (*models.Preferences, error) {
	p, err := r.getPreferences(ctx)
	if !errors.Is(err, models.ErrNotFound) {
		return p, err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO preferences (id, default_lead_minutes) VALUES (1, $1)
		 ON CONFLICT (id) DO NOTHING`,
		r.defaultLead,
	)
	if err != nil {
		return nil, database.Classify(err)
	}
	return r.getPreferences(ctx)
}

func (r *PreferencesRepository) getPreferences(ctx context.Context) (*models.Preferences, error) {
	p := &models.Preferences{}
	err := r.db.QueryRow(ctx,
		`SELECT default_lead_minutes, routine_enabled, schedule_enabled, completion_enabled, updated_at
		 FROM preferences WHERE id = 1`,
	).Scan(&p.DefaultLeadMinutes, &p.RoutineEnabled, &p.ScheduleEnabled, &p.CompletionEnabled, &p.UpdatedAt)
	if err != nil {
		return nil, database.Classify(err)
	}
	return p, nil
}

func (r *PreferencesRepository) SavePreferences(ctx context.Context, p *models.Preferences) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO preferences (id, default_lead_minutes, routine_enabled, schedule_enabled, completion_enabled, updated_at)
		 VALUES (1, $1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		     default_lead_minutes = EXCLUDED.default_lead_minutes,
		     routine_enabled = EXCLUDED.routine_enabled,
		     schedule_enabled = EXCLUDED.schedule_enabled,
		     completion_enabled = EXCLUDED.completion_enabled,
		     updated_at = NOW()`,
		p.DefaultLeadMinutes, p.RoutineEnabled, p.ScheduleEnabled, p.CompletionEnabled,
	)
	return database.Classify(err)
}

func (r *PreferencesRepository) DefaultLeadMinutes(ctx context.Context) (int, error) {
	p, err := r.GetOrCreatePreferences(ctx)
	if err != nil {
		return 0, err
	}
	return p.DefaultLeadMinutes, nil
}

func (r *PreferencesRepository) NotificationsEnabledFor(ctx context.Context, c models.Category) (bool, error) {
	p, err := r.GetOrCreatePreferences(ctx)
	if err != nil {
		return false, err
	}
	return p.Enabled(c), nil
}
