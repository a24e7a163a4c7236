// Package completion records routine completions and derives streak and
// completion-rate statistics from them. Nothing derived is stored; every
// query reads the completion log afresh.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

var ErrNotRoutine = errors.New("completion: source is not a routine")

const (
	initialStreakWindow = 32
	maxStreakWindow     = 1 << 16
)

var minDate = civil.Date{Year: 1, Month: 1, Day: 1}

type Storage interface {
	GetSource(ctx context.Context, id string) (*models.ReminderSource, error)
	// PutCompletion inserts the record unless one exists for the same
	// (source, date), reporting whether it inserted.
	PutCompletion(ctx context.Context, rec *models.CompletionRecord) (bool, error)
	DeleteCompletion(ctx context.Context, sourceID string, date civil.Date) error
	// QueryCompletions returns the records with from <= date <= to.
	QueryCompletions(ctx context.Context, sourceID string, from, to civil.Date) ([]models.CompletionRecord, error)
}

type Tracker struct {
	store    Storage
	clock    clock.Clock
	notifier models.Notifier
	prefs    models.PreferenceProvider
	logger   *slog.Logger
}

// NewTracker builds a tracker. notifier and prefs may be nil, in which
// case no completion feedback is presented.
func NewTracker(store Storage, clk clock.Clock, notifier models.Notifier, prefs models.PreferenceProvider, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    store,
		clock:    clk,
		notifier: notifier,
		prefs:    prefs,
		logger:   logger,
	}
}

// RecordCompletion marks the routine done on date. Repeating it for the
// same date changes nothing.
func (t *Tracker) RecordCompletion(ctx context.Context, sourceID string, date civil.Date) error {
	src, err := t.routine(ctx, sourceID)
	if err != nil {
		return err
	}

	inserted, err := t.store.PutCompletion(ctx, &models.CompletionRecord{
		SourceID:   sourceID,
		Date:       date,
		RecordedAt: t.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	if !inserted {
		t.logger.Debug("completion already recorded", "source_id", sourceID, "date", date)
		return nil
	}

	t.logger.Info("completion recorded", "source_id", sourceID, "date", date)
	t.feedback(ctx, src, date)
	return nil
}

// RemoveCompletion undoes a completion. Removing one that does not exist
// is not an error.
func (t *Tracker) RemoveCompletion(ctx context.Context, sourceID string, date civil.Date) error {
	err := t.store.DeleteCompletion(ctx, sourceID, date)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to remove completion: %w", err)
	}
	return nil
}

// CurrentStreak counts consecutive completed days ending at asOf, or at
// the day before when asOf itself is not completed yet.
func (t *Tracker) CurrentStreak(ctx context.Context, sourceID string, asOf civil.Date) (int, error) {
	if _, err := t.routine(ctx, sourceID); err != nil {
		return 0, err
	}
	return t.streak(ctx, sourceID, asOf)
}

// CompletionRate is the share of scheduled days in the trailing window
// that were completed. Every date in the window counts, including those
// before the routine was created. The rate is 0 when nothing was
// scheduled.
func (t *Tracker) CompletionRate(ctx context.Context, sourceID string, windowDays int, asOf civil.Date) (float64, error) {
	if windowDays <= 0 {
		return 0, fmt.Errorf("completion: window must be positive, got %d", windowDays)
	}
	src, err := t.routine(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	from := windowStart(windowDays, asOf)
	done, err := t.completedDates(ctx, sourceID, from, asOf)
	if err != nil {
		return 0, err
	}
	return t.rate(src, done, from, asOf), nil
}

// Stats computes every derived statistic from a single read of the log.
func (t *Tracker) Stats(ctx context.Context, sourceID string, asOf civil.Date) (models.DerivedStats, error) {
	src, err := t.routine(ctx, sourceID)
	if err != nil {
		return models.DerivedStats{}, err
	}

	records, err := t.store.QueryCompletions(ctx, sourceID, minDate, asOf)
	if err != nil {
		return models.DerivedStats{}, fmt.Errorf("failed to query completions: %w", err)
	}
	done := make(map[civil.Date]bool, len(records))
	for _, r := range records {
		done[r.Date] = true
	}

	stats := models.DerivedStats{
		SourceID:         sourceID,
		AsOf:             asOf,
		TotalCompletions: len(done),
		CompletedToday:   done[asOf],
		LongestStreak:    longestRun(done),
	}
	stats.CurrentStreak, _ = walkStreak(done, asOf, minDate)

	for _, w := range []struct {
		days int
		dst  *float64
	}{{7, &stats.WeekRate}, {30, &stats.MonthRate}} {
		*w.dst = t.rate(src, done, windowStart(w.days, asOf), asOf)
	}
	return stats, nil
}

func (t *Tracker) routine(ctx context.Context, sourceID string) (*models.ReminderSource, error) {
	src, err := t.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source %s: %w", sourceID, err)
	}
	if !src.IsRoutine() {
		return nil, fmt.Errorf("%s: %w", sourceID, ErrNotRoutine)
	}
	return src, nil
}

func (t *Tracker) streak(ctx context.Context, sourceID string, asOf civil.Date) (int, error) {
	for window := initialStreakWindow; ; window *= 2 {
		from := asOf.AddDays(-(window - 1))
		done, err := t.completedDates(ctx, sourceID, from, asOf)
		if err != nil {
			return 0, err
		}
		n, exhausted := walkStreak(done, asOf, from)
		if !exhausted || window >= maxStreakWindow {
			return n, nil
		}
	}
}

// walkStreak counts back from asOf (or the day before when asOf is not
// done). exhausted reports that the walk ran into from, so the streak may
// continue in older records.
func walkStreak(done map[civil.Date]bool, asOf, from civil.Date) (n int, exhausted bool) {
	day := asOf
	if !done[day] {
		day = day.AddDays(-1)
	}
	for !day.Before(from) && done[day] {
		n++
		day = day.AddDays(-1)
	}
	return n, day.Before(from)
}

func longestRun(done map[civil.Date]bool) int {
	dates := make([]civil.Date, 0, len(done))
	for d := range done {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	best, run := 0, 0
	for i, d := range dates {
		if i > 0 && dates[i-1].AddDays(1) == d {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

// windowStart is the first of the trailing windowDays dates ending at asOf.
func windowStart(windowDays int, asOf civil.Date) civil.Date {
	return asOf.AddDays(-(windowDays - 1))
}

func (t *Tracker) rate(src *models.ReminderSource, done map[civil.Date]bool, from, to civil.Date) float64 {
	loc := t.clock.Location()
	scheduled, completed := 0, 0
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !rrule.OccursOn(src.Rule, d, loc) {
			continue
		}
		scheduled++
		if done[d] {
			completed++
		}
	}
	if scheduled == 0 {
		return 0
	}
	return float64(completed) / float64(scheduled)
}

func (t *Tracker) completedDates(ctx context.Context, sourceID string, from, to civil.Date) (map[civil.Date]bool, error) {
	records, err := t.store.QueryCompletions(ctx, sourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	done := make(map[civil.Date]bool, len(records))
	for _, r := range records {
		done[r.Date] = true
	}
	return done, nil
}

func (t *Tracker) feedback(ctx context.Context, src *models.ReminderSource, date civil.Date) {
	if t.notifier == nil {
		return
	}
	if t.prefs != nil {
		on, err := t.prefs.NotificationsEnabledFor(ctx, models.CategoryCompletion)
		if err != nil || !on {
			return
		}
	}

	streak, err := t.streak(ctx, src.SourceID, date)
	if err != nil {
		t.logger.Warn("failed to compute streak for feedback", "source_id", src.SourceID, "err", err)
		return
	}
	body := fmt.Sprintf("Streak: %d days", streak)
	if streak == 1 {
		body = "Streak: 1 day"
	}
	n := models.Notification{
		Title:      "✅ Completed: " + src.Title,
		Body:       body,
		Category:   models.CategoryCompletion,
		SourceID:   src.SourceID,
		Occurrence: date.In(t.clock.Location()), // lets the presenter offer undo
	}
	if err := t.notifier.Present(ctx, n); err != nil {
		t.logger.Warn("failed to present completion feedback", "source_id", src.SourceID, "err", err)
	}
}
