package models

import "time"

type TriggerKind string

const (
	// LeadReminder fires a number of minutes before the occurrence.
	LeadReminder TriggerKind = "lead_reminder"
	// StartAlert fires at the occurrence.
	StartAlert TriggerKind = "start_alert"
)

// TriggerKinds lists every kind a source may have armed.
var TriggerKinds = []TriggerKind{LeadReminder, StartAlert}

func ParseTriggerKind(s string) (TriggerKind, bool) {
	switch TriggerKind(s) {
	case LeadReminder, StartAlert:
		return TriggerKind(s), true
	}
	return "", false
}

// Handle identifies an armed runner task.
type Handle string

// ScheduledTrigger is the armed wake-up for one (source, kind) pair.
type ScheduledTrigger struct {
	SourceID   string      `json:"source_id"`
	Kind       TriggerKind `json:"kind"`
	TargetAt   time.Time   `json:"target_at"`
	Occurrence time.Time   `json:"occurrence"`
	Handle     Handle      `json:"handle"`
	Snoozed    bool        `json:"snoozed"`
	ArmedAt    time.Time   `json:"armed_at"`
}

// TriggerPayload travels with an armed task and comes back when it fires.
type TriggerPayload struct {
	SourceID   string
	Kind       TriggerKind
	Occurrence time.Time
	Snoozed    bool
}

// FiredTrigger is emitted by the runner when a task's time arrives.
type FiredTrigger struct {
	Handle  Handle
	At      time.Time
	Payload TriggerPayload
}

// SnoozeRequest asks for a fired reminder to be repeated shortly.
// A zero Duration means the configured policy value.
type SnoozeRequest struct {
	SourceID   string
	Kind       TriggerKind
	Occurrence time.Time
	Duration   time.Duration
}
