package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/ai"
	"github.com/hray3182/nudge/internal/models"
	"github.com/hray3182/nudge/internal/rrule"
	"github.com/hray3182/nudge/internal/scheduler"
)

const maxPreview = 20

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	sources, err := h.deps.Sources.List(ctx)
	if err != nil {
		h.logger.Error("failed to list sources", "err", err)
		h.sendMessage(msg.Chat.ID, "Could not load reminders, please try again later")
		return
	}
	if len(sources) == 0 {
		h.sendMessage(msg.Chat.ID, "No reminders yet. Try /new")
		return
	}

	loc := h.deps.Clock.Location()
	var sb strings.Builder
	sb.WriteString("**Reminders**\n\n")
	for _, src := range sources {
		status := "✅"
		if !src.Enabled {
			status = "⏸"
		}
		fmt.Fprintf(&sb, "%s %s (%s)\n", status, src.Title, src.Kind)
		fmt.Fprintf(&sb, "   %s\n   `%s`\n\n", rrule.Describe(src.Rule, loc), src.SourceID)
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) handleNew(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /new <description>\nFor example: /new dentist on the 20th at 14:00")
		return
	}
	if h.deps.Drafter == nil {
		h.sendMessage(msg.Chat.ID, "Natural-language reminders are not configured")
		return
	}
	h.createFromText(ctx, msg.Chat.ID, text)
}

func (h *Handlers) createFromText(ctx context.Context, chatID int64, text string) {
	src, err := h.deps.Drafter.DraftSource(ctx, text, h.deps.Clock.Now())
	var need *ai.NeedInfoError
	switch {
	case errors.As(err, &need):
		h.sendMessage(chatID, need.Question)
		return
	case err != nil:
		h.logger.Warn("failed to draft source", "err", err)
		h.sendMessage(chatID, "Sorry, I could not turn that into a reminder")
		return
	}

	res, err := h.deps.Sources.Create(ctx, src)
	if err != nil {
		h.logger.Error("failed to create source", "err", err)
		h.sendMessage(chatID, "Could not save the reminder, please try again later")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("⏰ Created **%s**\n%s\n%s\n`%s`",
		src.Title, rrule.Describe(src.Rule, h.deps.Clock.Location()), h.describeResult(res), src.SourceID))
}

func (h *Handlers) handleEdit(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.SplitN(strings.TrimSpace(msg.CommandArguments()), " ", 2)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /edit <id> <what to change>")
		return
	}
	if h.deps.Drafter == nil {
		h.sendMessage(msg.Chat.ID, "Natural-language reminders are not configured")
		return
	}
	id := fields[0]
	existing, err := h.deps.Sources.Get(ctx, id)
	if err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}

	loc := h.deps.Clock.Location()
	prompt := fmt.Sprintf("Current reminder: %q (%s), %s.\nChange: %s",
		existing.Title, existing.Kind, rrule.Describe(existing.Rule, loc), strings.TrimSpace(fields[1]))
	draft, err := h.deps.Drafter.DraftSource(ctx, prompt, h.deps.Clock.Now())
	var need *ai.NeedInfoError
	switch {
	case errors.As(err, &need):
		h.sendMessage(msg.Chat.ID, need.Question)
		return
	case err != nil:
		h.logger.Warn("failed to draft edit", "source_id", id, "err", err)
		h.sendMessage(msg.Chat.ID, "Sorry, I could not understand that change")
		return
	}

	updated := *existing
	updated.Rule = draft.Rule
	updated.LeadMinutes = draft.LeadMinutes
	if draft.Title != "" {
		updated.Title = draft.Title
	}
	if draft.Description != "" {
		updated.Description = draft.Description
	}
	res, err := h.deps.Sources.Update(ctx, &updated)
	if err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("✏️ Updated **%s**\n%s\n%s",
		updated.Title, rrule.Describe(updated.Rule, loc), h.describeResult(res)))
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := h.requireID(msg, "/delete <id>")
	if !ok {
		return
	}
	if err := h.deps.Sources.Delete(ctx, id); err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}
	h.sendMessage(msg.Chat.ID, "🗑 Deleted")
}

func (h *Handlers) handleToggle(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := h.requireID(msg, "/toggle <id>")
	if !ok {
		return
	}
	src, err := h.deps.Sources.Get(ctx, id)
	if err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}
	res, err := h.deps.Sources.SetEnabled(ctx, id, !src.Enabled)
	if err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("**%s**: %s", src.Title, h.describeResult(res)))
}

func (h *Handlers) handlePreview(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		h.sendMessage(msg.Chat.ID, "Usage: /preview <id> [n]")
		return
	}
	n := 5
	if len(fields) > 1 {
		v, err := strconv.Atoi(fields[1])
		if err != nil || v < 1 {
			h.sendMessage(msg.Chat.ID, "n must be a positive number")
			return
		}
		n = min(v, maxPreview)
	}

	src, err := h.deps.Sources.Get(ctx, fields[0])
	if err != nil {
		h.replyError(msg.Chat.ID, fields[0], err)
		return
	}
	loc := h.deps.Clock.Location()
	times, err := rrule.Occurrences(src.Rule, h.deps.Clock.Now(), n, loc)
	if err != nil {
		h.logger.Warn("failed to expand rule", "source_id", src.SourceID, "err", err)
	}
	if len(times) == 0 {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("**%s** has no upcoming occurrences", src.Title))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**\n%s\n\n", src.Title, rrule.Describe(src.Rule, loc))
	for _, t := range times {
		sb.WriteString("• " + t.In(loc).Format("Mon, 02 Jan 2006 15:04") + "\n")
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func (h *Handlers) requireID(msg *tgbotapi.Message, usage string) (string, bool) {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" {
		h.sendMessage(msg.Chat.ID, "Usage: "+usage)
		return "", false
	}
	return id, true
}

func (h *Handlers) replyError(chatID int64, id string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.sendMessage(chatID, "No reminder with id "+id)
	case errors.Is(err, models.ErrStorageUnavailable):
		h.sendMessage(chatID, "Storage is unavailable right now, please try again later")
	default:
		h.logger.Error("request failed", "source_id", id, "err", err)
		h.sendMessage(chatID, "Something went wrong")
	}
}

func (h *Handlers) describeResult(res scheduler.Result) string {
	switch res.Status {
	case scheduler.StatusScheduled:
		return "Next: " + res.Occurrence.In(h.deps.Clock.Location()).Format("Mon, 02 Jan 15:04")
	case scheduler.StatusDormant:
		return "No upcoming occurrence"
	case scheduler.StatusDisabled:
		return "Switched off"
	case scheduler.StatusMuted:
		return "Notifications for this category are muted"
	}
	return string(res.Status)
}
