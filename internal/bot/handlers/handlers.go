package handlers

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/clock"
	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/scheduler"
)

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type SourceService interface {
	Create(ctx context.Context, src *models.ReminderSource) (scheduler.Result, error)
	Update(ctx context.Context, src *models.ReminderSource) (scheduler.Result, error)
	Get(ctx context.Context, id string) (*models.ReminderSource, error)
	List(ctx context.Context) ([]*models.ReminderSource, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (scheduler.Result, error)
	Delete(ctx context.Context, id string) error
	ReplanDefaultLead(ctx context.Context) (int, error)
}

// ActionService carries out the notification buttons.
type ActionService interface {
	Snooze(ctx context.Context, req models.SnoozeRequest) (models.ScheduledTrigger, error)
	Complete(ctx context.Context, sourceID string, date civil.Date) (scheduler.Result, error)
	Uncomplete(ctx context.Context, sourceID string, date civil.Date) (scheduler.Result, error)
	// Notify asks for an immediate re-arm of sources with nothing armed.
	Notify()
}

type StatsService interface {
	Stats(ctx context.Context, sourceID string, asOf civil.Date) (models.DerivedStats, error)
}

type PreferenceStore interface {
	GetOrCreatePreferences(ctx context.Context) (*models.Preferences, error)
	SavePreferences(ctx context.Context, p *models.Preferences) error
}

type Drafter interface {
	DraftSource(ctx context.Context, text string, now time.Time) (*models.ReminderSource, error)
}

type Deps struct {
	Sources SourceService
	Actions ActionService
	Stats   StatsService
	Prefs   PreferenceStore
	Drafter Drafter // optional
	Clock   clock.Clock
}

type Handlers struct {
	api    API
	chatID int64
	deps   Deps
	logger *slog.Logger
}

// New returns handlers that answer only chatID. A zero chatID accepts
// every chat.
func New(api API, chatID int64, deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{api: api, chatID: chatID, deps: deps, logger: logger}
}

// allowed reports whether chatID may use the bot. Zero is never a real
// chat and only passes when every chat is accepted.
func (h *Handlers) allowed(chatID int64) bool {
	return h.chatID == 0 || h.chatID == chatID
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !h.allowed(msg.Chat.ID) {
		return
	}

	switch msg.Command() {
	case "start", "help":
		h.handleHelp(msg)
	case "list":
		h.handleList(ctx, msg)
	case "new":
		h.handleNew(ctx, msg)
	case "edit":
		h.handleEdit(ctx, msg)
	case "delete":
		h.handleDelete(ctx, msg)
	case "toggle":
		h.handleToggle(ctx, msg)
	case "preview":
		h.handlePreview(ctx, msg)
	case "stats":
		h.handleStats(ctx, msg)
	case "mute":
		h.handleMute(ctx, msg, false)
	case "unmute":
		h.handleMute(ctx, msg, true)
	case "lead":
		h.handleLead(ctx, msg)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

// HandleMessage treats plain text as a /new request when drafting is
// available.
func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !h.allowed(msg.Chat.ID) || msg.Text == "" {
		return
	}
	if h.deps.Drafter == nil {
		h.sendMessage(msg.Chat.ID, "I only understand commands, see /help")
		return
	}
	h.createFromText(ctx, msg.Chat.ID, msg.Text)
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", "chat_id", chatID, "err", err)
	}
}

const helpText = `# Nudge
Routines and events with reminders.

/list - all reminders
/new <text> - create one from a description, e.g. "gym mon wed fri at 7"
/edit <id> <text> - change a reminder, e.g. "move it to 18:30"
/toggle <id> - switch a reminder on or off
/delete <id> - remove a reminder
/preview <id> [n] - next occurrences
/stats <id> - streak and completion rate of a routine
/mute <category> and /unmute <category> - routine, schedule or completion
/lead <minutes> - default advance warning for events`

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, helpText)
}
