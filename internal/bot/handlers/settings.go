package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/models"
)

func (h *Handlers) handleMute(ctx context.Context, msg *tgbotapi.Message, on bool) {
	c, ok := models.ParseCategory(strings.ToLower(strings.TrimSpace(msg.CommandArguments())))
	if !ok {
		h.sendMessage(msg.Chat.ID, "Category must be routine, schedule or completion")
		return
	}
	p, err := h.deps.Prefs.GetOrCreatePreferences(ctx)
	if err != nil {
		h.replyError(msg.Chat.ID, "", err)
		return
	}
	p.SetEnabled(c, on)
	if err := h.deps.Prefs.SavePreferences(ctx, p); err != nil {
		h.replyError(msg.Chat.ID, "", err)
		return
	}

	state := "muted"
	if on {
		state = "on"
		// Muted sources were left unarmed when they last fired.
		h.deps.Actions.Notify()
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("🔔 %s notifications: %s", c, state))
}

func (h *Handlers) handleLead(ctx context.Context, msg *tgbotapi.Message) {
	p, err := h.deps.Prefs.GetOrCreatePreferences(ctx)
	if err != nil {
		h.replyError(msg.Chat.ID, "", err)
		return
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("Default lead time: %d minutes", p.DefaultLeadMinutes))
		return
	}
	minutes, err := strconv.Atoi(arg)
	if err != nil || minutes < 0 || minutes > 10080 {
		h.sendMessage(msg.Chat.ID, "Lead time must be between 0 and 10080 minutes")
		return
	}
	p.DefaultLeadMinutes = minutes
	if err := h.deps.Prefs.SavePreferences(ctx, p); err != nil {
		h.replyError(msg.Chat.ID, "", err)
		return
	}
	reply := fmt.Sprintf("Default lead time set to %d minutes", minutes)
	n, err := h.deps.Sources.ReplanDefaultLead(ctx)
	switch {
	case err != nil:
		h.logger.Warn("failed to re-plan events after lead change", "err", err)
		reply += "\nSome events keep their old reminder until they next fire"
	case n > 0:
		reply += fmt.Sprintf("\n%d events re-planned", n)
	}
	h.sendMessage(msg.Chat.ID, reply)
}
