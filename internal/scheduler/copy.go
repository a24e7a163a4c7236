package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
)

// reminderNotification builds the copy for a fired trigger.
func reminderNotification(src *models.ReminderSource, fired models.FiredTrigger, loc *time.Location) models.Notification {
	n := models.Notification{
		Category:   src.Category(),
		SourceID:   src.SourceID,
		Kind:       fired.Payload.Kind,
		Occurrence: fired.Payload.Occurrence,
		Snoozed:    fired.Payload.Snoozed,
	}

	switch {
	case fired.Payload.Snoozed:
		n.Title = src.Title + " (Snoozed)"
		n.Body = src.Description
	case src.IsRoutine():
		n.Title = "Time for: " + src.Title
		n.Body = src.Description
	case fired.Payload.Kind == models.LeadReminder:
		n.Title = "Reminder: " + src.Title
		mins := int(math.Round(fired.Payload.Occurrence.Sub(fired.At).Minutes()))
		if mins == 1 {
			n.Body = "Starting in 1 minute"
		} else {
			n.Body = fmt.Sprintf("Starting in %d minutes", mins)
		}
	default:
		n.Title = src.Title
		n.Body = "Starting now"
	}

	if src.Rule.IsRecurring() {
		if n.Body != "" {
			n.Body += "\n\n"
		}
		n.Body += "🔄 " + rrule.Describe(src.Rule, loc)
	}
	return n
}
