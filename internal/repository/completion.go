package repository

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/models"
)

type CompletionRepository struct {
	db database.DBTX
}

func NewCompletionRepository(db database.DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

func dateParam(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// PutCompletion reports false when the (source, date) pair already exists.
func (r *CompletionRepository) PutCompletion(ctx context.Context, rec *models.CompletionRecord) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO completion_records (source_id, completion_date, recorded_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source_id, completion_date) DO NOTHING`,
		rec.SourceID, dateParam(rec.Date), rec.RecordedAt,
	)
	if err != nil {
		return false, database.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CompletionRepository) DeleteCompletion(ctx context.Context, sourceID string, date civil.Date) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM completion_records WHERE source_id = $1 AND completion_date = $2`,
		sourceID, dateParam(date),
	)
	if err != nil {
		return database.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *CompletionRepository) QueryCompletions(ctx context.Context, sourceID string, from, to civil.Date) ([]models.CompletionRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT source_id, completion_date, recorded_at
		 FROM completion_records
		 WHERE source_id = $1 AND completion_date BETWEEN $2 AND $3
		 ORDER BY completion_date`,
		sourceID, dateParam(from), dateParam(to),
	)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()

	var records []models.CompletionRecord
	for rows.Next() {
		var (
			rec  models.CompletionRecord
			date time.Time
		)
		if err := rows.Scan(&rec.SourceID, &date, &rec.RecordedAt); err != nil {
			return nil, database.Classify(err)
		}
		rec.Date = civil.DateOf(date)
		records = append(records, rec)
	}
	return records, database.Classify(rows.Err())
}
