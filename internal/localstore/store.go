// Package localstore keeps reminder state in a single SQLite file for
// single-user installs that do not run PostgreSQL.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/mattn/go-sqlite3"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db          *sql.DB
	defaultLead int
}

func New(db *sql.DB, defaultLead int) (*Store, error) {
	if db == nil {
		return nil, errors.New("localstore: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{db: db, defaultLead: defaultLead}, nil
}

// Open opens the file at path, applies migrations and returns the store.
func Open(path string, defaultLead int) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps BUSY errors to the cross-process case.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := New(db, defaultLead)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) PutSource(ctx context.Context, src *models.ReminderSource) error {
	text, err := rrule.Encode(src.Rule)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	var oneShot any
	if src.Rule.Freq == rrule.None {
		oneShot = formatTime(src.Rule.At)
	}
	var lead any
	if src.LeadMinutes != nil {
		lead = *src.LeadMinutes
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reminder_sources (source_id, kind, title, description, recurrence_kind, recurrence_rule,
			one_shot_at, lead_minutes, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			description = excluded.description,
			recurrence_kind = excluded.recurrence_kind,
			recurrence_rule = excluded.recurrence_rule,
			one_shot_at = excluded.one_shot_at,
			lead_minutes = excluded.lead_minutes,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		src.SourceID, string(src.Kind), src.Title, src.Description, src.Rule.Freq.String(), text,
		oneShot, lead, boolInt(src.Enabled), formatTime(src.CreatedAt), formatTime(src.UpdatedAt),
	)
	return classify(err)
}

func (s *Store) GetSource(ctx context.Context, id string) (*models.ReminderSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, kind, title, description, recurrence_kind, recurrence_rule,
			one_shot_at, lead_minutes, enabled, created_at, updated_at
		FROM reminder_sources WHERE source_id = ?`, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, classify(err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]*models.ReminderSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, kind, title, description, recurrence_kind, recurrence_rule,
			one_shot_at, lead_minutes, enabled, created_at, updated_at
		FROM reminder_sources ORDER BY created_at, source_id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]*models.ReminderSource, 0)
	for rows.Next() {
		src, scanErr := scanSource(rows)
		if scanErr != nil {
			return nil, classify(scanErr)
		}
		out = append(out, src)
	}
	return out, classify(rows.Err())
}

func (s *Store) DeleteSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminder_sources WHERE source_id = ?`, id)
	if err != nil {
		return classify(err)
	}
	return checkRowsAffected(res)
}

func (s *Store) UpsertArmedTrigger(ctx context.Context, t *models.ScheduledTrigger) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO armed_triggers (source_id, kind, target_at, occurrence_at, handle, armed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, kind) DO UPDATE SET
			target_at = excluded.target_at,
			occurrence_at = excluded.occurrence_at,
			handle = excluded.handle,
			armed_at = excluded.armed_at`,
		t.SourceID, string(t.Kind), formatTime(t.TargetAt), formatTime(t.Occurrence), string(t.Handle), formatTime(t.ArmedAt),
	)
	return classify(err)
}

func (s *Store) GetArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) (*models.ScheduledTrigger, error) {
	var target, occurrence, handle, armed string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_at, occurrence_at, handle, armed_at
		FROM armed_triggers WHERE source_id = ? AND kind = ?`, sourceID, string(kind),
	).Scan(&target, &occurrence, &handle, &armed)
	if err != nil {
		return nil, classify(err)
	}
	t := &models.ScheduledTrigger{SourceID: sourceID, Kind: kind, Handle: models.Handle(handle)}
	if t.TargetAt, err = parseTime(target); err != nil {
		return nil, err
	}
	if t.Occurrence, err = parseTime(occurrence); err != nil {
		return nil, err
	}
	if t.ArmedAt, err = parseTime(armed); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) DeleteArmedTrigger(ctx context.Context, sourceID string, kind models.TriggerKind) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM armed_triggers WHERE source_id = ? AND kind = ?`, sourceID, string(kind))
	if err != nil {
		return classify(err)
	}
	return checkRowsAffected(res)
}

func (s *Store) PutCompletion(ctx context.Context, rec *models.CompletionRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_records (source_id, completion_date, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source_id, completion_date) DO NOTHING`,
		rec.SourceID, rec.Date.String(), formatTime(rec.RecordedAt),
	)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) DeleteCompletion(ctx context.Context, sourceID string, date civil.Date) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM completion_records WHERE source_id = ? AND completion_date = ?`,
		sourceID, date.String(),
	)
	if err != nil {
		return classify(err)
	}
	return checkRowsAffected(res)
}

func (s *Store) QueryCompletions(ctx context.Context, sourceID string, from, to civil.Date) ([]models.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT completion_date, recorded_at FROM completion_records
		WHERE source_id = ? AND completion_date BETWEEN ? AND ?
		ORDER BY completion_date`,
		sourceID, from.String(), to.String(),
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]models.CompletionRecord, 0)
	for rows.Next() {
		var date, recorded string
		if err := rows.Scan(&date, &recorded); err != nil {
			return nil, classify(err)
		}
		rec := models.CompletionRecord{SourceID: sourceID}
		if rec.Date, err = civil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("parse completion date: %w", err)
		}
		if rec.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

// GetOrCreatePreferences returns the stored preferences, inserting the
// defaults on first use.
func (s *Store) GetOrCreatePreferences(ctx context.Context) (*models.Preferences, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (id, default_lead_minutes, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		s.defaultLead, formatTime(time.Now()),
	)
	if err != nil {
		return nil, classify(err)
	}

	var (
		p                       models.Preferences
		routine, schedule, done int
		updated                 string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT default_lead_minutes, routine_enabled, schedule_enabled, completion_enabled, updated_at
		FROM preferences WHERE id = 1`,
	).Scan(&p.DefaultLeadMinutes, &routine, &schedule, &done, &updated)
	if err != nil {
		return nil, classify(err)
	}
	p.RoutineEnabled, p.ScheduleEnabled, p.CompletionEnabled = routine != 0, schedule != 0, done != 0
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SavePreferences(ctx context.Context, p *models.Preferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (id, default_lead_minutes, routine_enabled, schedule_enabled, completion_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			default_lead_minutes = excluded.default_lead_minutes,
			routine_enabled = excluded.routine_enabled,
			schedule_enabled = excluded.schedule_enabled,
			completion_enabled = excluded.completion_enabled,
			updated_at = excluded.updated_at`,
		p.DefaultLeadMinutes, boolInt(p.RoutineEnabled), boolInt(p.ScheduleEnabled), boolInt(p.CompletionEnabled),
		formatTime(time.Now()),
	)
	return classify(err)
}

func (s *Store) DefaultLeadMinutes(ctx context.Context) (int, error) {
	p, err := s.GetOrCreatePreferences(ctx)
	if err != nil {
		return 0, err
	}
	return p.DefaultLeadMinutes, nil
}

func (s *Store) NotificationsEnabledFor(ctx context.Context, c models.Category) (bool, error) {
	p, err := s.GetOrCreatePreferences(ctx)
	if err != nil {
		return false, err
	}
	return p.Enabled(c), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.ReminderSource, error) {
	var (
		src                    models.ReminderSource
		kind, recKind, recText string
		oneShot                sql.NullString
		lead                   sql.NullInt64
		enabled                int
		created, updated       string
	)
	err := row.Scan(&src.SourceID, &kind, &src.Title, &src.Description, &recKind, &recText,
		&oneShot, &lead, &enabled, &created, &updated)
	if err != nil {
		return nil, err
	}
	src.Kind = models.SourceKind(kind)
	src.Enabled = enabled != 0
	if lead.Valid {
		v := int(lead.Int64)
		src.LeadMinutes = &v
	}
	if src.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if src.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	freq, err := rrule.ParseFrequency(recKind)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.SourceID, err)
	}
	var at time.Time
	if oneShot.Valid {
		if at, err = parseTime(oneShot.String); err != nil {
			return nil, err
		}
	}
	if src.Rule, err = rrule.Parse(freq, recText, at); err != nil {
		return nil, fmt.Errorf("source %s: %w", src.SourceID, err)
	}
	return &src, nil
}

// classify maps SQLite errors onto the shared error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return err
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func formatTime(v time.Time) string {
	return v.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
