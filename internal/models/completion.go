package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// CompletionRecord marks a routine as done on a local calendar date.
// (SourceID, Date) is unique.
type CompletionRecord struct {
	SourceID   string     `json:"source_id"`
	Date       civil.Date `json:"date"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// DerivedStats are computed on demand from the completion log.
type DerivedStats struct {
	SourceID         string     `json:"source_id"`
	AsOf             civil.Date `json:"as_of"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	TotalCompletions int        `json:"total_completions"`
	WeekRate         float64    `json:"week_rate"`
	MonthRate        float64    `json:"month_rate"`
	CompletedToday   bool       `json:"completed_today"`
}
