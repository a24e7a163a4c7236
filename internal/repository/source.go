package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

const sourceColumns = `source_id, kind, title, description, recurrence_kind, recurrence_rule,
	one_shot_at, lead_minutes, enabled, created_at, updated_at`

type SourceRepository struct {
	db database.DBTX
}

func NewSourceRepository(db database.DBTX) *SourceRepository {
	return &SourceRepository{db: db}
}

// PutSource inserts the source or replaces every mutable column of an
// existing one.
func (r *SourceRepository) PutSource(ctx context.Context, src *models.ReminderSource) error {
	text, err := rrule.Encode(src.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}
	var oneShotAt *time.Time
	if src.Rule.Freq == rrule.None {
		at := src.Rule.At
		oneShotAt = &at
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO reminder_sources (`+sourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (source_id) DO UPDATE SET
		     kind = EXCLUDED.kind,
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     recurrence_kind = EXCLUDED.recurrence_kind,
		     recurrence_rule = EXCLUDED.recurrence_rule,
		     one_shot_at = EXCLUDED.one_shot_at,
		     lead_minutes = EXCLUDED.lead_minutes,
		     enabled = EXCLUDED.enabled,
		     updated_at = EXCLUDED.updated_at`,
		src.SourceID, string(src.Kind), src.Title, src.Description, src.Rule.Freq.String(), text,
		oneShotAt, src.LeadMinutes, src.Enabled, src.CreatedAt, src.UpdatedAt,
	)
	return database.Classify(err)
}

func (r *SourceRepository) GetSource(ctx context.Context, id string) (*models.ReminderSource, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM reminder_sources WHERE source_id = $1`,
		id,
	)
	src, err := scanSource(row)
	if err != nil {
		return nil, database.Classify(err)
	}
	return src, nil
}

func (r *SourceRepository) ListSources(ctx context.Context) ([]*models.ReminderSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM reminder_sources ORDER BY created_at, source_id`,
	)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var sources []*models.ReminderSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, database.Classify(err)
		}
		sources = append(sources, src)
	}
	return sources, database.Classify(rows.Err())
}

func (r *SourceRepository) DeleteSource(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reminder_sources WHERE source_id = $1`, id)
	if err != nil {
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (*models.ReminderSource, error) {
	var (
		src       models.ReminderSource
		kind      string
		recKind   string
		recText   string
		oneShotAt *time.Time
	)
	err := row.Scan(&src.SourceID, &kind, &src.Title, &src.Description, &recKind, &recText,
		&oneShotAt, &src.LeadMinutes, &src.Enabled, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	src.Kind = models.SourceKind(kind)

	freq, err := rrule.ParseFrequency(recKind)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.SourceID, err)
	}
	var at time.Time
	if oneShotAt != nil {
		at = *oneShotAt
	}
	src.Rule, err = rrule.Parse(freq, recText, at)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.SourceID, err)
	}
	return &src, nil
}
