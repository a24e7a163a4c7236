package repository

import (
	"context"

	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/models"
)

type TriggerRepository struct {
	db database.DBTX
}

func NewTriggerRepository(db database.DBTX) *TriggerRepository {
	return &TriggerRepository{db: db}
}

func (r *TriggerRepository) UpsertArmedTrigger(ctx context.Context, t *models.ScheduledTrigger) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO armed_triggers (source_id, kind, target_at, occurrence_at, handle, armed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (source_id, kind) DO UPDATE SET
		     target_at = EXCLUDED.target_at,
		     occurrence_at = EXCLUDED.occurrence_at,
		     handle = EXCLUDED.handle,
		     armed_at = EXCLUDED.armed_at`,
		t.SourceID, string(t.Kind), t.TargetAt, t.Occurrence, string(t.Handle), t.ArmedAt,
	)
	return database.Classify(err)
}

func (r *TriggerRepository) GetArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) (*models.ScheduledTrigger, error) {
	t := &models.ScheduledTrigger{SourceID: sourceID, Kind: kind}
	var handle string
	err := r.db.QueryRow(ctx,
		`SELECT target_at, occurrence_at, handle, armed_at
		 FROM armed_triggers WHERE source_id = $1 AND kind = $2`,
		sourceID, string(kind),
	).Scan(&t.TargetAt, &t.Occurrence, &handle, &t.ArmedAt)
	if err != nil {
		return nil, database.Classify(err)
	}
	t.Handle = models.Handle(handle)
	return t, nil
}

func (r *TriggerRepository) DeleteArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM armed_triggers WHERE source_id = $1 AND kind = $2`,
		sourceID, string(kind),
	)
	if err != nil {
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
