package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

type fakeAPI struct {
	reply string
	err   error
	req   openai.ChatCompletionRequest
}

func (f *fakeAPI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func reply(t *testing.T, d draft) string {
	t.Helper()
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return string(b)
}

var now = time.Date(2026, time.October, 15, 13, 50, 0, 0, time.UTC)

func TestDraftSource_WeeklyRoutine(t *testing.T) {
	api := &fakeAPI{reply: reply(t, draft{
		Kind: "routine", Title: "Gym", Recurrence: "weekly",
		RRule: "FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=7;BYMINUTE=0", LeadMinutes: -1,
	})}
	c := NewWithAPI(api, "test-model")

	src, err := c.DraftSource(context.Background(), "gym every mon wed fri at 7", now)
	require.NoError(t, err)
	assert.Equal(t, models.SourceRoutine, src.Kind)
	assert.Equal(t, rrule.Weekly(rrule.TimeOfDay{Hour: 7}, time.Monday, time.Wednesday, time.Friday), src.Rule)
	assert.Nil(t, src.LeadMinutes)
	assert.True(t, src.Enabled)

	assert.Equal(t, "test-model", api.req.Model)
	require.Len(t, api.req.Messages, 2)
	assert.Contains(t, api.req.Messages[0].Content, "2026-10-15 13:50 (Thursday)")
	assert.Equal(t, "gym every mon wed fri at 7", api.req.Messages[1].Content)
}

func TestDraftSource_OneShotEvent(t *testing.T) {
	api := &fakeAPI{reply: reply(t, draft{
		Kind: "schedule", Title: "Dentist", Recurrence: "none", At: "2026-10-20 14:00", LeadMinutes: 30,
	})}
	src, err := NewWithAPI(api, "m").DraftSource(context.Background(), "dentist tuesday 2pm, warn me 30 min before", now)
	require.NoError(t, err)
	assert.Equal(t, models.SourceSchedule, src.Kind)
	assert.True(t, src.Rule.At.Equal(time.Date(2026, time.October, 20, 14, 0, 0, 0, time.UTC)))
	require.NotNil(t, src.LeadMinutes)
	assert.Equal(t, 30, *src.LeadMinutes)
}

func TestDraftSource_NeedMoreInfo(t *testing.T) {
	api := &fakeAPI{reply: reply(t, draft{NeedMoreInfo: true, FollowUp: "When?", LeadMinutes: -1})}
	_, err := NewWithAPI(api, "m").DraftSource(context.Background(), "remind me", now)

	var need *NeedInfoError
	require.ErrorAs(t, err, &need)
	assert.Equal(t, "When?", need.Question)
}

func TestDraftSource_RejectsInvalidRule(t *testing.T) {
	api := &fakeAPI{reply: reply(t, draft{
		Kind: "routine", Title: "Gym", Recurrence: "daily", RRule: "FREQ=WEEKLY;BYDAY=MO;BYHOUR=7;BYMINUTE=0", LeadMinutes: -1,
	})}
	_, err := NewWithAPI(api, "m").DraftSource(context.Background(), "gym", now)
	var perr *rrule.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestDraftSource_RejectsBadInstant(t *testing.T) {
	api := &fakeAPI{reply: reply(t, draft{Kind: "schedule", Title: "Call", Recurrence: "none", At: "tomorrow", LeadMinutes: -1})}
	_, err := NewWithAPI(api, "m").DraftSource(context.Background(), "call tomorrow", now)
	var perr *rrule.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "at", perr.Field)
}

func TestDraftSource_APIErrors(t *testing.T) {
	_, err := NewWithAPI(&fakeAPI{err: errors.New("rate limited")}, "m").DraftSource(context.Background(), "x", now)
	assert.ErrorContains(t, err, "rate limited")

	_, err = NewWithAPI(&fakeAPI{reply: "not json"}, "m").DraftSource(context.Background(), "x", now)
	assert.ErrorContains(t, err, "failed to parse AI response")
}
