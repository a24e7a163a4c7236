package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/completion"
	"github.com/hray3182/nudge/internal/localstore"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/notify"
	"github.com/hray3182/nudge/internal/rrule"
	"github.com/hray3182/nudge/internal/runner"
	"github.com/hray3182/nudge/internal/scheduler"
)

const chat int64 = 99

var now = time.Date(2026, time.October, 15, 13, 50, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	answers  []tgbotapi.CallbackConfig
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, c.(tgbotapi.CallbackConfig))
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1].Text
}

type fakeSources struct {
	byID    map[string]*models.ReminderSource
	created []*models.ReminderSource
	replans int
}

func (f *fakeSources) Create(_ context.Context, src *models.ReminderSource) (scheduler.Result, error) {
	src.SourceID = "new-id"
	f.created = append(f.created, src)
	return scheduler.Result{Status: scheduler.StatusScheduled, Occurrence: now.Add(time.Hour)}, nil
}

func (f *fakeSources) Update(_ context.Context, src *models.ReminderSource) (scheduler.Result, error) {
	if _, ok := f.byID[src.SourceID]; !ok {
		return scheduler.Result{}, models.ErrNotFound
	}
	f.byID[src.SourceID] = src
	return scheduler.Result{Status: scheduler.StatusScheduled, Occurrence: now.Add(2 * time.Hour)}, nil
}

func (f *fakeSources) ReplanDefaultLead(context.Context) (int, error) {
	f.replans++
	return 2, nil
}

func (f *fakeSources) Get(_ context.Context, id string) (*models.ReminderSource, error) {
	src, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return src, nil
}

func (f *fakeSources) List(context.Context) ([]*models.ReminderSource, error) {
	var out []*models.ReminderSource
	for _, id := range []string{"gym", "dentist"} {
		if src, ok := f.byID[id]; ok {
			out = append(out, src)
		}
	}
	return out, nil
}

func (f *fakeSources) SetEnabled(_ context.Context, id string, enabled bool) (scheduler.Result, error) {
	src, ok := f.byID[id]
	if !ok {
		return scheduler.Result{}, models.ErrNotFound
	}
	src.Enabled = enabled
	if !enabled {
		return scheduler.Result{Status: scheduler.StatusDisabled}, nil
	}
	return scheduler.Result{Status: scheduler.StatusScheduled, Occurrence: now.Add(time.Hour)}, nil
}

func (f *fakeSources) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type completeCall struct {
	id   string
	date civil.Date
}

type fakeActions struct {
	snoozes    []models.SnoozeRequest
	completed  []completeCall
	uncomplete []completeCall
	notified   int
}

func (f *fakeActions) Snooze(_ context.Context, req models.SnoozeRequest) (models.ScheduledTrigger, error) {
	f.snoozes = append(f.snoozes, req)
	return models.ScheduledTrigger{SourceID: req.SourceID, Kind: req.Kind, TargetAt: now.Add(10 * time.Minute)}, nil
}

func (f *fakeActions) Complete(_ context.Context, id string, d civil.Date) (scheduler.Result, error) {
	f.completed = append(f.completed, completeCall{id, d})
	return scheduler.Result{}, nil
}

func (f *fakeActions) Uncomplete(_ context.Context, id string, d civil.Date) (scheduler.Result, error) {
	f.uncomplete = append(f.uncomplete, completeCall{id, d})
	return scheduler.Result{}, models.ErrNotFound
}

func (f *fakeActions) Notify() { f.notified++ }

type fakeStats struct{}

func (fakeStats) Stats(_ context.Context, id string, asOf civil.Date) (models.DerivedStats, error) {
	if id != "gym" {
		return models.DerivedStats{}, completion.ErrNotRoutine
	}
	return models.DerivedStats{SourceID: id, AsOf: asOf, CurrentStreak: 1, LongestStreak: 4, TotalCompletions: 9, WeekRate: 0.5, MonthRate: 0.3}, nil
}

type fakePrefs struct {
	p     models.Preferences
	saves int
}

func (f *fakePrefs) GetOrCreatePreferences(context.Context) (*models.Preferences, error) {
	p := f.p
	return &p, nil
}

func (f *fakePrefs) SavePreferences(_ context.Context, p *models.Preferences) error {
	f.p = *p
	f.saves++
	return nil
}

type fakeDrafter struct {
	src *models.ReminderSource
	err error
}

func (f fakeDrafter) DraftSource(context.Context, string, time.Time) (*models.ReminderSource, error) {
	return f.src, f.err
}

type fixture struct {
	api     *fakeAPI
	sources *fakeSources
	actions *fakeActions
	prefs   *fakePrefs
	h       *Handlers
}

func newFixture(t *testing.T, drafter Drafter) *fixture {
	t.Helper()
	f := &fixture{
		api: &fakeAPI{},
		sources: &fakeSources{byID: map[string]*models.ReminderSource{
			"gym": {SourceID: "gym", Kind: models.SourceRoutine, Title: "Gym", Enabled: true,
				Rule: rrule.EveryDay(rrule.TimeOfDay{Hour: 7})},
			"dentist": {SourceID: "dentist", Kind: models.SourceSchedule, Title: "Dentist",
				Rule: rrule.Once(now.Add(-time.Hour))},
		}},
		actions: &fakeActions{},
		prefs:   &fakePrefs{p: *models.NewDefaultPreferences(15)},
	}
	f.h = New(f.api, chat, Deps{
		Sources: f.sources,
		Actions: f.actions,
		Stats:   fakeStats{},
		Prefs:   f.prefs,
		Drafter: drafter,
		Clock:   clock.NewFixed(now, time.UTC),
	}, nil)
	return f
}

func command(text string) *tgbotapi.Message {
	name := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chat},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/list"))

	text := f.api.lastText(t)
	assert.Contains(t, text, "✅ Gym (routine)")
	assert.Contains(t, text, "every day at 07:00")
	assert.Contains(t, text, "⏸ Dentist (schedule)")
	assert.Contains(t, text, "gym")
}

func TestIgnoresOtherChats(t *testing.T) {
	f := newFixture(t, nil)
	msg := command("/list")
	msg.Chat.ID = 1
	f.h.HandleCommand(context.Background(), msg)
	assert.Empty(t, f.api.messages)
}

func TestNew_CreatesDraft(t *testing.T) {
	draft := &models.ReminderSource{Kind: models.SourceRoutine, Title: "Read", Enabled: true,
		Rule: rrule.EveryDay(rrule.TimeOfDay{Hour: 22})}
	f := newFixture(t, fakeDrafter{src: draft})

	f.h.HandleCommand(context.Background(), command("/new read every night at 10pm"))
	require.Len(t, f.sources.created, 1)
	text := f.api.lastText(t)
	assert.Contains(t, text, "Created Read")
	assert.Contains(t, text, "Next: Thu, 15 Oct 14:50")
	assert.Contains(t, text, "new-id")
}

func TestNew_AsksFollowUp(t *testing.T) {
	f := newFixture(t, fakeDrafter{err: &ai.NeedInfoError{Question: "At what time?"}})
	f.h.HandleMessage(context.Background(), &tgbotapi.Message{Text: "remind me to stretch", Chat: &tgbotapi.Chat{ID: chat}})

	assert.Empty(t, f.sources.created)
	assert.Equal(t, "At what time?", f.api.lastText(t))
}

func TestNew_WithoutDrafter(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/new gym"))
	assert.Contains(t, f.api.lastText(t), "not configured")
}

func TestDeleteUnknown(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/delete nope"))
	assert.Equal(t, "No reminder with id nope", f.api.lastText(t))
}

func TestToggle(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/toggle gym"))
	assert.False(t, f.sources.byID["gym"].Enabled)
	assert.Equal(t, "Gym: Switched off", f.api.lastText(t))
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/preview gym 2"))

	text := f.api.lastText(t)
	assert.Contains(t, text, "• Fri, 16 Oct 2026 07:00")
	assert.Contains(t, text, "• Sat, 17 Oct 2026 07:00")
	assert.NotContains(t, text, "18 Oct")

	f.h.HandleCommand(context.Background(), command("/preview dentist"))
	assert.Contains(t, f.api.lastText(t), "no upcoming occurrences")
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCommand(context.Background(), command("/stats gym"))
	text := f.api.lastText(t)
	assert.Contains(t, text, "Current streak: 1 day")
	assert.Contains(t, text, "Best streak: 4 days")
	assert.Contains(t, text, "Last 7 days: 50%")

	f.h.HandleCommand(context.Background(), command("/stats dentist"))
	assert.Equal(t, "Stats are only kept for routines", f.api.lastText(t))
}

func TestMuteAndLead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.h.HandleCommand(ctx, command("/mute schedule"))
	assert.False(t, f.prefs.p.ScheduleEnabled)
	assert.True(t, f.prefs.p.RoutineEnabled)

	assert.Zero(t, f.actions.notified)

	f.h.HandleCommand(ctx, command("/mute bogus"))
	assert.Equal(t, 1, f.prefs.saves)

	f.h.HandleCommand(ctx, command("/unmute schedule"))
	assert.True(t, f.prefs.p.ScheduleEnabled)
	assert.Equal(t, 1, f.actions.notified)

	f.h.HandleCommand(ctx, command("/lead 30"))
	assert.Equal(t, 30, f.prefs.p.DefaultLeadMinutes)
	assert.Equal(t, 1, f.sources.replans)
	assert.Contains(t, f.api.lastText(t), "2 events re-planned")

	f.h.HandleCommand(ctx, command("/lead -5"))
	assert.Equal(t, 30, f.prefs.p.DefaultLeadMinutes)
	assert.Equal(t, 1, f.sources.replans)
}

func TestEdit_UpdatesThroughDrafter(t *testing.T) {
	draft := &models.ReminderSource{Kind: models.SourceSchedule, Title: "",
		Rule: rrule.EveryDay(rrule.TimeOfDay{Hour: 19, Minute: 30})}
	f := newFixture(t, fakeDrafter{src: draft})

	f.h.HandleCommand(context.Background(), command("/edit gym move it to 19:30"))
	gym := f.sources.byID["gym"]
	assert.Equal(t, "Gym", gym.Title)
	assert.Equal(t, models.SourceRoutine, gym.Kind, "kind belongs to the owning item")
	assert.Equal(t, rrule.TimeOfDay{Hour: 19, Minute: 30}, gym.Rule.Time)
	assert.Contains(t, f.api.lastText(t), "Updated Gym")

	f.h.HandleCommand(context.Background(), command("/edit nope later"))
	assert.Contains(t, f.api.lastText(t), "No reminder with id nope")

	f.h.HandleCommand(context.Background(), command("/edit gym"))
	assert.Contains(t, f.api.lastText(t), "Usage: /edit")
}

func TestEdit_ReplacesArmedTrigger(t *testing.T) {
	ctx := context.Background()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "nudge.db"), 15)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	run := runner.New(4)
	clk := clock.NewFixed(now, time.UTC)
	planner := scheduler.NewPlanner(store, run, store, clk, nil, nil)
	sources := scheduler.NewSourceManager(store, planner, scheduler.DefaultRetryPolicy, nil)

	_, err = sources.Create(ctx, &models.ReminderSource{
		SourceID: "gym",
		Kind:     models.SourceRoutine,
		Title:    "Gym",
		Rule:     rrule.EveryDay(rrule.TimeOfDay{Hour: 18}),
		Enabled:  true,
	})
	require.NoError(t, err)
	before, err := store.GetArmedTrigger(ctx, "gym", models.StartAlert)
	require.NoError(t, err)
	require.True(t, before.TargetAt.Equal(time.Date(2026, time.October, 15, 18, 0, 0, 0, time.UTC)))

	api := &fakeAPI{}
	h := New(api, chat, Deps{
		Sources: sources,
		Actions: &fakeActions{},
		Stats:   fakeStats{},
		Prefs:   store,
		Drafter: fakeDrafter{src: &models.ReminderSource{Kind: models.SourceRoutine, Title: "Gym",
			Rule: rrule.EveryDay(rrule.TimeOfDay{Hour: 19, Minute: 30})}},
		Clock: clk,
	}, nil)
	h.HandleCommand(ctx, command("/edit gym move it to 19:30"))

	after, err := store.GetArmedTrigger(ctx, "gym", models.StartAlert)
	require.NoError(t, err)
	assert.NotEqual(t, before.Handle, after.Handle)
	assert.True(t, after.TargetAt.Equal(time.Date(2026, time.October, 15, 19, 30, 0, 0, time.UTC)))
	assert.Equal(t, 1, run.Pending(), "the old trigger is cancelled")
	assert.Contains(t, api.lastText(t), "Next: Thu, 15 Oct 19:30")
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}},
	}
}

func TestCallbackSnooze(t *testing.T) {
	f := newFixture(t, nil)
	occ := time.Date(2026, time.October, 15, 14, 0, 0, 0, time.UTC)
	data := notify.Action{Op: notify.OpSnooze, SourceID: "evt", Kind: models.LeadReminder, Occurrence: occ}.Encode()

	f.h.HandleCallbackQuery(context.Background(), callback(data))
	require.Len(t, f.actions.snoozes, 1)
	assert.Equal(t, models.LeadReminder, f.actions.snoozes[0].Kind)
	assert.True(t, f.actions.snoozes[0].Occurrence.Equal(occ))
	require.Len(t, f.api.answers, 1)
	assert.Equal(t, "⏰ Snoozed until 14:00", f.api.answers[0].Text)
}

func TestCallbackDoneAndUndo(t *testing.T) {
	f := newFixture(t, nil)
	day := civil.Date{Year: 2026, Month: time.October, Day: 15}

	f.h.HandleCallbackQuery(context.Background(), callback("done:gym:2026-10-15"))
	assert.Equal(t, []completeCall{{"gym", day}}, f.actions.completed)
	assert.Equal(t, "✅ Done", f.api.answers[0].Text)

	f.h.HandleCallbackQuery(context.Background(), callback("undo:gym:2026-10-15"))
	assert.Equal(t, []completeCall{{"gym", day}}, f.actions.uncomplete)
	assert.Equal(t, "This reminder no longer exists", f.api.answers[1].Text)
}

func TestCallbackRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.h.HandleCallbackQuery(context.Background(), callback("remind_ack:3"))
	assert.Equal(t, "This button is no longer supported", f.api.answers[0].Text)

	other := callback("done:gym:2026-10-15")
	other.Message.Chat.ID = 1
	f.h.HandleCallbackQuery(context.Background(), other)
	assert.Empty(t, f.actions.completed)
	assert.Len(t, f.api.answers, 2)
}

func TestCallbackWithoutMessage(t *testing.T) {
	f := newFixture(t, nil)

	stranger := &tgbotapi.CallbackQuery{ID: "cb-2", Data: "done:gym:2026-10-15", From: &tgbotapi.User{ID: 1}}
	f.h.HandleCallbackQuery(context.Background(), stranger)
	anonymous := &tgbotapi.CallbackQuery{ID: "cb-3", Data: "done:gym:2026-10-15"}
	f.h.HandleCallbackQuery(context.Background(), anonymous)
	assert.Empty(t, f.actions.completed)
	assert.Len(t, f.api.answers, 2)

	owner := &tgbotapi.CallbackQuery{ID: "cb-4", Data: "done:gym:2026-10-15", From: &tgbotapi.User{ID: chat}}
	f.h.HandleCallbackQuery(context.Background(), owner)
	assert.Len(t, f.actions.completed, 1)
}
