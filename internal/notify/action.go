package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hray3182/nudge/internal/models"
)

// ActionOp is the verb carried by an inline button.
type ActionOp string

const (
	OpSnooze ActionOp = "snooze"
	OpDone   ActionOp = "done"
	OpUndo   ActionOp = "undo"
)

var ErrBadAction = errors.New("malformed action")

// Action is the decoded callback data of a notification button. Telegram
// limits callback data to 64 bytes, so kinds travel as one letter and
// instants as Unix seconds.
type Action struct {
	Op         ActionOp
	SourceID   string
	Kind       models.TriggerKind // snooze only
	Occurrence time.Time          // snooze only
	Date       civil.Date         // done and undo
}

func kindCode(k models.TriggerKind) string {
	if k == models.LeadReminder {
		return "l"
	}
	return "s"
}

func (a Action) Encode() string {
	switch a.Op {
	case OpSnooze:
		return fmt.Sprintf("%s:%s:%s:%d", a.Op, a.SourceID, kindCode(a.Kind), a.Occurrence.Unix())
	default:
		return fmt.Sprintf("%s:%s:%s", a.Op, a.SourceID, a.Date)
	}
}

func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[1] == "" {
		return Action{}, fmt.Errorf("%w: %q", ErrBadAction, data)
	}
	a := Action{Op: ActionOp(parts[0]), SourceID: parts[1]}

	switch a.Op {
	case OpSnooze:
		if len(parts) != 4 {
			return Action{}, fmt.Errorf("%w: %q", ErrBadAction, data)
		}
		switch parts[2] {
		case "l":
			a.Kind = models.LeadReminder
		case "s":
			a.Kind = models.StartAlert
		default:
			return Action{}, fmt.Errorf("%w: kind %q", ErrBadAction, parts[2])
		}
		sec, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", ErrBadAction, err)
		}
		a.Occurrence = time.Unix(sec, 0)
	case OpDone, OpUndo:
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("%w: %q", ErrBadAction, data)
		}
		d, err := civil.ParseDate(parts[2])
		if err != nil {
			return Action{}, fmt.Errorf("%w: %w", ErrBadAction, err)
		}
		a.Date = d
	default:
		return Action{}, fmt.Errorf("%w: op %q", ErrBadAction, parts[0])
	}
	return a, nil
}

// Actions lists the buttons a notification offers: snooze on every
// reminder, done on routine reminders and undo on completion feedback.
func Actions(n models.Notification, loc *time.Location) []Action {
	if n.SourceID == "" {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	day := civil.DateOf(n.Occurrence.In(loc))

	var out []Action
	if n.Kind != "" {
		out = append(out, Action{Op: OpSnooze, SourceID: n.SourceID, Kind: n.Kind, Occurrence: n.Occurrence})
		if n.Category == models.CategoryRoutine {
			out = append(out, Action{Op: OpDone, SourceID: n.SourceID, Date: day})
		}
	}
	if n.Category == models.CategoryCompletion && !n.Occurrence.IsZero() {
		out = append(out, Action{Op: OpUndo, SourceID: n.SourceID, Date: day})
	}
	return out
}
