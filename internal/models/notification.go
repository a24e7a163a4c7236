package models

import "time"

// Notification is what a Notifier presents to the user.
type Notification struct {
	Title    string
	Body     string
	Category Category

	// Set for reminders so the presenter can attach snooze/done actions.
	SourceID   string
	Kind       TriggerKind
	Occurrence time.Time
	Snoozed    bool
}
