package handlers

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/notify"
)

// HandleCallbackQuery runs a notification button and answers the query
// with a short toast.
func (h *Handlers) HandleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if !h.allowed(callbackChat(cb)) {
		h.answer(cb.ID, "")
		return
	}
	action, err := notify.ParseAction(cb.Data)
	if err != nil {
		h.logger.Debug("ignoring callback", "data", cb.Data, "err", err)
		h.answer(cb.ID, "This button is no longer supported")
		return
	}
	h.answer(cb.ID, h.runAction(ctx, action))
}

// callbackChat is the chat the button was pressed in. Inline-mode
// callbacks carry no message, so the sender stands in; in a private chat
// the two ids are equal.
func callbackChat(cb *tgbotapi.CallbackQuery) int64 {
	switch {
	case cb.Message != nil && cb.Message.Chat != nil:
		return cb.Message.Chat.ID
	case cb.From != nil:
		return cb.From.ID
	}
	return 0
}

func (h *Handlers) runAction(ctx context.Context, a notify.Action) string {
	var err error
	text := ""
	switch a.Op {
	case notify.OpSnooze:
		var trig models.ScheduledTrigger
		trig, err = h.deps.Actions.Snooze(ctx, models.SnoozeRequest{
			SourceID:   a.SourceID,
			Kind:       a.Kind,
			Occurrence: a.Occurrence,
		})
		if err == nil {
			text = "⏰ Snoozed until " + trig.TargetAt.In(h.deps.Clock.Location()).Format("15:04")
		}
	case notify.OpDone:
		_, err = h.deps.Actions.Complete(ctx, a.SourceID, a.Date)
		text = "✅ Done"
	case notify.OpUndo:
		_, err = h.deps.Actions.Uncomplete(ctx, a.SourceID, a.Date)
		text = "↩️ Undone"
	}

	switch {
	case err == nil:
		return text
	case errors.Is(err, models.ErrNotFound):
		return "This reminder no longer exists"
	case errors.Is(err, models.ErrStorageUnavailable):
		return "Storage is unavailable, please try again"
	default:
		h.logger.Error("callback action failed", "op", string(a.Op), "source_id", a.SourceID, "err", err)
		return "Something went wrong"
	}
}

func (h *Handlers) answer(id, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		h.logger.Warn("failed to answer callback", "err", err)
	}
}
