package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

// --- Storage ---

type armedKey struct {
	sourceID string
	kind     models.TriggerKind
}

type memStore struct {
	mu      sync.Mutex
	sources map[string]*models.ReminderSource
	armed   map[armedKey]models.ScheduledTrigger

	upsertErr       error
	transientGets   int
	transientPuts   int
	getSourceCalls  int
	putSourceCalls  int
	upsertCallCount int
}

func newMemStore() *memStore {
	return &memStore{
		sources: make(map[string]*models.ReminderSource),
		armed:   make(map[armedKey]models.ScheduledTrigger),
	}
}

func (s *memStore) GetSource(_ context.Context, id string) (*models.ReminderSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getSourceCalls++
	if s.transientGets > 0 {
		s.transientGets--
		return nil, fmt.Errorf("get source: %w", models.ErrStorageUnavailable)
	}
	src, ok := s.sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *src
	return &c, nil
}

func (s *memStore) ListSources(_ context.Context) ([]*models.ReminderSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ReminderSource, 0, len(s.sources))
	for _, src := range s.sources {
		c := *src
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *memStore) PutSource(_ context.Context, src *models.ReminderSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putSourceCalls++
	if s.transientPuts > 0 {
		s.transientPuts--
		return fmt.Errorf("put source: %w", models.ErrStorageUnavailable)
	}
	c := *src
	s.sources[src.SourceID] = &c
	return nil
}

func (s *memStore) DeleteSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.sources, id)
	for k := range s.armed {
		if k.sourceID == id {
			delete(s.armed, k)
		}
	}
	return nil
}

func (s *memStore) UpsertArmedTrigger(_ context.Context, t *models.ScheduledTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCallCount++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.armed[armedKey{t.SourceID, t.Kind}] = *t
	return nil
}

func (s *memStore) GetArmedTrigger(_ context.Context, sourceID string, kind models.TriggerKind) (*models.ScheduledTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.armed[armedKey{sourceID, kind}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (s *memStore) DeleteArmedTrigger(_ context.Context, sourceID string, kind models.TriggerKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := armedKey{sourceID, kind}
	if _, ok := s.armed[key]; !ok {
		return models.ErrNotFound
	}
	delete(s.armed, key)
	return nil
}

func (s *memStore) armedFor(sourceID string) map[models.TriggerKind]models.ScheduledTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.TriggerKind]models.ScheduledTrigger)
	for k, t := range s.armed {
		if k.sourceID == sourceID {
			out[k.kind] = t
		}
	}
	return out
}

// --- Trigger runner ---

type armCall struct {
	Handle  models.Handle
	At      time.Time
	Payload models.TriggerPayload
}

type fakeRunner struct {
	mu      sync.Mutex
	next    int
	active  map[models.Handle]armCall
	arms    []armCall
	cancels []models.Handle
	armErr  error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{active: make(map[models.Handle]armCall)}
}

func (r *fakeRunner) Arm(_ context.Context, at time.Time, payload models.TriggerPayload) (models.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armErr != nil {
		return "", r.armErr
	}
	r.next++
	call := armCall{Handle: models.Handle(fmt.Sprintf("h%d", r.next)), At: at, Payload: payload}
	r.active[call.Handle] = call
	r.arms = append(r.arms, call)
	return call.Handle, nil
}

func (r *fakeRunner) Cancel(_ context.Context, h models.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, h)
	if _, ok := r.active[h]; !ok {
		return fmt.Errorf("cancel %s: %w", h, models.ErrStaleHandle)
	}
	delete(r.active, h)
	return nil
}

// fire removes the task as the real runner does when it delivers it.
func (r *fakeRunner) fire(h models.Handle) models.FiredTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.active[h]
	delete(r.active, h)
	return models.FiredTrigger{Handle: call.Handle, At: call.At, Payload: call.Payload}
}

func (r *fakeRunner) activeFor(sourceID string) []armCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []armCall
	for _, c := range r.active {
		if c.Payload.SourceID == sourceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (r *fakeRunner) armCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.arms)
}

// --- Preferences ---

type fakePrefs struct {
	mu       sync.Mutex
	lead     int
	disabled map[models.Category]bool
	err      error
}

func newFakePrefs(lead int) *fakePrefs {
	return &fakePrefs{lead: lead, disabled: make(map[models.Category]bool)}
}

func (p *fakePrefs) DefaultLeadMinutes(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lead, p.err
}

func (p *fakePrefs) NotificationsEnabledFor(_ context.Context, c models.Category) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.disabled[c], p.err
}

func (p *fakePrefs) disable(c models.Category) {
	p.mu.Lock()
	p.disabled[c] = true
	p.mu.Unlock()
}

// --- Notifier ---

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	ch   chan models.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan models.Notification, 16)}
}

func (n *recordingNotifier) Present(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	n.ch <- msg
	return nil
}

func (n *recordingNotifier) all() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

// --- Completer ---

type completionCall struct {
	SourceID string
	Date     civil.Date
}

type fakeCompleter struct {
	mu       sync.Mutex
	recorded []completionCall
	removed  []completionCall
	err      error
}

func (c *fakeCompleter) RecordCompletion(_ context.Context, id string, date civil.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.recorded = append(c.recorded, completionCall{id, date})
	return nil
}

func (c *fakeCompleter) RemoveCompletion(_ context.Context, id string, date civil.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.removed = append(c.removed, completionCall{id, date})
	return nil
}

// --- Fixture ---

// Thursday 15 October 2026, 13:50 UTC.
var testNow = time.Date(2026, time.October, 15, 13, 50, 0, 0, time.UTC)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxTries: 4}

type fixture struct {
	store   *memStore
	runner  *fakeRunner
	prefs   *fakePrefs
	clock   *clock.Fixed
	planner *Planner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		runner: newFakeRunner(),
		prefs:  newFakePrefs(15),
		clock:  clock.NewFixed(testNow, time.UTC),
	}
	f.planner = NewPlanner(f.store, f.runner, f.prefs, f.clock, nil, nil)
	return f
}

func (f *fixture) addSource(src *models.ReminderSource) *models.ReminderSource {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = testNow.Add(-30 * 24 * time.Hour)
	}
	c := *src
	f.store.mu.Lock()
	f.store.sources[src.SourceID] = &c
	f.store.mu.Unlock()
	return src
}

func scheduleEvent(id string, rule rrule.Rule, lead *int) *models.ReminderSource {
	return &models.ReminderSource{
		SourceID:    id,
		Kind:        models.SourceSchedule,
		Title:       "Dentist",
		Rule:        rule,
		LeadMinutes: lead,
		Enabled:     true,
	}
}

func routine(id string, rule rrule.Rule) *models.ReminderSource {
	return &models.ReminderSource{
		SourceID: id,
		Kind:     models.SourceRoutine,
		Title:    "Stretch",
		Rule:     rule,
		Enabled:  true,
	}
}

func intPtr(v int) *int { return &v }

func hm(h, m int) time.Time {
	return time.Date(2026, time.October, 15, h, m, 0, 0, time.UTC)
}
