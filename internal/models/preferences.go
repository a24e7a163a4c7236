package models

import "time"

const DefaultLeadMinutes = 15

// Preferences holds the user's notification settings.
type Preferences struct {
	DefaultLeadMinutes int       `json:"default_lead_minutes" validate:"min=0,max=10080"`
	RoutineEnabled     bool      `json:"routine_enabled"`
	ScheduleEnabled    bool      `json:"schedule_enabled"`
	CompletionEnabled  bool      `json:"completion_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func NewDefaultPreferences(leadMinutes int) *Preferences {
	return &Preferences{
		DefaultLeadMinutes: leadMinutes,
		RoutineEnabled:     true,
		ScheduleEnabled:    true,
		CompletionEnabled:  true,
		UpdatedAt:          time.Now(),
	}
}

func (p *Preferences) Enabled(c Category) bool {
	switch c {
	case CategoryRoutine:
		return p.RoutineEnabled
	case CategorySchedule:
		return p.ScheduleEnabled
	case CategoryCompletion:
		return p.CompletionEnabled
	}
	return false
}

func (p *Preferences) SetEnabled(c Category, on bool) {
	switch c {
	case CategoryRoutine:
		p.RoutineEnabled = on
	case CategorySchedule:
		p.ScheduleEnabled = on
	case CategoryCompletion:
		p.CompletionEnabled = on
	}
}
