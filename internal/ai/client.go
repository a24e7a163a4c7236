package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

// ChatCompleter is the part of *openai.Client the drafter calls.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api   ChatCompleter
	model string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return NewWithAPI(openai.NewClientWithConfig(config), model)
}

func NewWithAPI(api ChatCompleter, model string) *Client {
	return &Client{api: api, model: model}
}

// NeedInfoError is returned when the request is too vague to draft a
// source. Question is what to ask the user.
type NeedInfoError struct {
	Question string
}

func (e *NeedInfoError) Error() string {
	return "more information needed: " + e.Question
}

// draft is the structured reply. Strict schemas cannot have optional
// fields, so lead_minutes uses -1 for "preference default".
type draft struct {
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Recurrence   string `json:"recurrence"`
	RRule        string `json:"rrule"`
	At           string `json:"at"`
	LeadMinutes  int    `json:"lead_minutes"`
	NeedMoreInfo bool   `json:"need_more_info"`
	FollowUp     string `json:"follow_up"`
}

const systemPromptTemplate = `You turn a user's request into a reminder for the Nudge reminder bot.

Current time: %s (%s)

Fields:
- kind: "routine" for habits the user wants to complete and track (exercise, reading, medicine),
  "schedule" for appointments and events.
- title: short title. description: optional extra detail, otherwise "".
- recurrence: "none" for a single occurrence, "daily" for every day, "weekly" for a fixed set of weekdays,
  "custom" when the user lists specific weekdays that are not a simple weekly pattern.
- rrule: for daily, an RFC 5545 rule like "FREQ=DAILY;BYHOUR=7;BYMINUTE=30"; for weekly and custom,
  "FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=18;BYMINUTE=0". Use exactly one BYHOUR and one BYMINUTE. "" when recurrence is none.
- at: for recurrence none, the local date and time as "YYYY-MM-DD HH:MM", resolving relative phrases such as
  "tomorrow" or "in 3 hours" against the current time. "" otherwise.
- lead_minutes: minutes of advance warning if the user asks for one, otherwise -1.
- need_more_info: true when the time or the subject is missing; then follow_up holds one short question
  and the other fields may be empty.`

var draftSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"kind": {"type": "string", "enum": ["routine", "schedule"]},
		"title": {"type": "string"},
		"description": {"type": "string"},
		"recurrence": {"type": "string", "enum": ["none", "daily", "weekly", "custom"]},
		"rrule": {"type": "string"},
		"at": {"type": "string"},
		"lead_minutes": {"type": "integer", "minimum": -1},
		"need_more_info": {"type": "boolean"},
		"follow_up": {"type": "string"}
	},
	"required": ["kind", "title", "description", "recurrence", "rrule", "at", "lead_minutes", "need_more_info", "follow_up"],
	"additionalProperties": false
}`)

// DraftSource asks the model for a reminder matching text. The result is
// not persisted and has no SourceID yet.
func (c *Client) DraftSource(ctx context.Context, text string, now time.Time) (*models.ReminderSource, error) {
	prompt := fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 15:04 (Monday)"), now.Location())
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "reminder",
				Schema: draftSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from AI")
	}

	var d draft
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &d); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return d.source(now.Location())
}

func (d draft) source(loc *time.Location) (*models.ReminderSource, error) {
	if d.NeedMoreInfo {
		q := d.FollowUp
		if q == "" {
			q = "What should I remind you about, and when?"
		}
		return nil, &NeedInfoError{Question: q}
	}
	if strings.TrimSpace(d.Title) == "" {
		return nil, &NeedInfoError{Question: "What should the reminder be called?"}
	}

	freq, err := rrule.ParseFrequency(d.Recurrence)
	if err != nil {
		return nil, err
	}
	var at time.Time
	if freq == rrule.None {
		at, err = time.ParseInLocation("2006-01-02 15:04", d.At, loc)
		if err != nil {
			return nil, &rrule.ParseError{Field: "at", Value: d.At, Err: err}
		}
	}
	rule, err := rrule.Parse(freq, d.RRule, at)
	if err != nil {
		return nil, err
	}

	src := &models.ReminderSource{
		Kind:        models.SourceKind(d.Kind),
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Rule:        rule,
		Enabled:     true,
	}
	if src.Kind != models.SourceRoutine {
		src.Kind = models.SourceSchedule
	}
	if d.LeadMinutes >= 0 {
		lead := d.LeadMinutes
		src.LeadMinutes = &lead
	}
	return src, nil
}
