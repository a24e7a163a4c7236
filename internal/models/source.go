package models

import (
	"time"

	"github.com/hray3182/nudge/internal/rrule"
)

type SourceKind string

const (
	SourceRoutine  SourceKind = "routine"
	SourceSchedule SourceKind = "schedule"
)

// Category groups notifications for the per-category preference toggles.
type Category string

const (
	CategoryRoutine    Category = "routine"
	CategorySchedule   Category = "schedule"
	CategoryCompletion Category = "completion"
)

func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryRoutine, CategorySchedule, CategoryCompletion:
		return Category(s), true
	}
	return "", false
}

// ReminderSource is a routine or schedule event that owns a reminder
// configuration.
type ReminderSource struct {
	SourceID    string     `json:"source_id" validate:"required,max=64"`
	Kind        SourceKind `json:"kind" validate:"required,oneof=routine schedule"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Rule        rrule.Rule `json:"-"`
	LeadMinutes *int       `json:"lead_minutes,omitempty" validate:"omitempty,min=0,max=10080"` // nil: preference default
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *ReminderSource) IsRoutine() bool {
	return s.Kind == SourceRoutine
}

// Category is the notification category of the source's regular reminders.
func (s *ReminderSource) Category() Category {
	if s.Kind == SourceRoutine {
		return CategoryRoutine
	}
	return CategorySchedule
}
