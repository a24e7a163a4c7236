// Package notify presents reminder notifications to the user.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hray3182/nudge/internal/format"
	"github.com/hray3182/nudge/internal/models"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var buttonLabels = map[ActionOp]string{
	OpSnooze: "⏰ Snooze",
	OpDone:   "✅ Done",
	OpUndo:   "↩️ Undo",
}

// Telegram sends notifications to a single chat.
type Telegram struct {
	api     Sender
	chatID  int64
	loc     *time.Location
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[tgbotapi.Message]
	logger  *slog.Logger
}

// NewTelegram builds the notifier. perSecond <= 0 disables rate limiting.
func NewTelegram(api Sender, chatID int64, loc *time.Location, perSecond float64, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	t := &Telegram{
		api:     api,
		chatID:  chatID,
		loc:     loc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
	t.breaker = gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return t
}

func (t *Telegram) Present(ctx context.Context, n models.Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := Message(t.chatID, n, t.loc)
	sent, err := t.breaker.Execute(func() (tgbotapi.Message, error) {
		return t.api.Send(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	t.logger.Debug("notification sent", "source_id", n.SourceID, "kind", n.Kind, "message_id", sent.MessageID)
	return nil
}

// Message renders n as a Telegram message with its action buttons.
func Message(chatID int64, n models.Notification, loc *time.Location) tgbotapi.MessageConfig {
	var b format.Builder
	b.Bold(n.Title)
	if n.Body != "" {
		b.Text("\n\n").Text(n.Body)
	}
	parsed := b.Result()

	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities

	actions := Actions(n, loc)
	if len(actions) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, len(actions))
		for i, a := range actions {
			row[i] = tgbotapi.NewInlineKeyboardButtonData(buttonLabels[a.Op], a.Encode())
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return msg
}
