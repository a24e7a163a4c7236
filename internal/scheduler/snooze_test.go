package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

func TestSnooze_ArmsOneShotAfterPolicyDuration(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(hm(13, 0))
	f.addSource(scheduleEvent("evt", rrule.EveryDay(rrule.TimeOfDay{Hour: 14}), intPtr(15)))

	ctx := context.Background()
	_, err := f.planner.Reschedule(ctx, "evt")
	require.NoError(t, err)
	regular := f.store.armedFor("evt")

	// The lead reminder fires at 13:45 and the user snoozes it.
	f.clock.Set(hm(13, 45))
	snoozer := NewSnoozeCoordinator(f.store, f.runner, f.clock, 0, nil, nil)
	trig, err := snoozer.Snooze(ctx, models.SnoozeRequest{
		SourceID:   "evt",
		Kind:       models.LeadReminder,
		Occurrence: hm(14, 0),
	})
	require.NoError(t, err)

	assert.True(t, trig.TargetAt.Equal(hm(13, 55)))
	assert.True(t, trig.Snoozed)
	assert.Equal(t, models.LeadReminder, trig.Kind)

	active := f.runner.activeFor("evt")
	require.Len(t, active, 3)
	var snoozed []armCall
	for _, a := range active {
		if a.Payload.Snoozed {
			snoozed = append(snoozed, a)
		}
	}
	require.Len(t, snoozed, 1)
	assert.Equal(t, trig.Handle, snoozed[0].Handle)
	assert.True(t, snoozed[0].Payload.Occurrence.Equal(hm(14, 0)))

	assert.Equal(t, regular, f.store.armedFor("evt"), "regular triggers are untouched")
	assert.Empty(t, f.runner.cancels)
}

func TestSnooze_RoutineKeepsNextOccurrence(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(hm(7, 0))
	f.addSource(routine("rt", rrule.EveryDay(rrule.TimeOfDay{Hour: 7})))

	ctx := context.Background()
	// Fired at 07:00 and advanced to tomorrow.
	_, err := f.planner.Advance(ctx, "rt", hm(7, 0))
	require.NoError(t, err)

	snoozer := NewSnoozeCoordinator(f.store, f.runner, f.clock, 10*time.Minute, nil, nil)
	trig, err := snoozer.Snooze(ctx, models.SnoozeRequest{SourceID: "rt", Kind: models.StartAlert})
	require.NoError(t, err)
	assert.True(t, trig.TargetAt.Equal(hm(7, 10)))

	active := f.runner.activeFor("rt")
	require.Len(t, active, 2)
	assert.True(t, active[0].At.Equal(hm(7, 10)))
	assert.True(t, active[1].At.Equal(time.Date(2026, time.October, 16, 7, 0, 0, 0, time.UTC)))
	assert.False(t, active[1].Payload.Snoozed)
}

func TestSnooze_ExplicitDuration(t *testing.T) {
	f := newFixture(t)
	f.addSource(routine("rt", rrule.EveryDay(rrule.TimeOfDay{Hour: 7})))

	snoozer := NewSnoozeCoordinator(f.store, f.runner, f.clock, 0, nil, nil)
	trig, err := snoozer.Snooze(context.Background(), models.SnoozeRequest{
		SourceID: "rt",
		Kind:     models.StartAlert,
		Duration: time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, trig.TargetAt.Equal(testNow.Add(time.Hour)))
}

func TestSnooze_Rejections(t *testing.T) {
	f := newFixture(t)
	f.addSource(routine("rt", rrule.EveryDay(rrule.TimeOfDay{Hour: 7})))
	snoozer := NewSnoozeCoordinator(f.store, f.runner, f.clock, 0, nil, nil)
	ctx := context.Background()

	_, err := snoozer.Snooze(ctx, models.SnoozeRequest{SourceID: "missing", Kind: models.StartAlert})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = snoozer.Snooze(ctx, models.SnoozeRequest{SourceID: "rt", Kind: "bogus"})
	assert.Error(t, err)
	assert.Zero(t, f.runner.armCount())
}
