package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hray3182/nudge/internal/completion"
)

func (h *Handlers) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	id, ok := h.requireID(msg, "/stats <id>")
	if !ok {
		return
	}
	today := civil.DateOf(h.deps.Clock.Now())
	st, err := h.deps.Stats.Stats(ctx, id, today)
	if errors.Is(err, completion.ErrNotRoutine) {
		h.sendMessage(msg.Chat.ID, "Stats are only kept for routines")
		return
	}
	if err != nil {
		h.replyError(msg.Chat.ID, id, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 **Stats**\n\n")
	fmt.Fprintf(&sb, "🔥 Current streak: %s\n", days(st.CurrentStreak))
	fmt.Fprintf(&sb, "🏆 Best streak: %s\n", days(st.LongestStreak))
	fmt.Fprintf(&sb, "✅ Total completions: %d\n", st.TotalCompletions)
	fmt.Fprintf(&sb, "📅 Last 7 days: %.0f%%\n", st.WeekRate*100)
	fmt.Fprintf(&sb, "🗓 Last 30 days: %.0f%%\n", st.MonthRate*100)
	if st.CompletedToday {
		sb.WriteString("\nDone for today")
	}
	h.sendMessage(msg.Chat.ID, sb.String())
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
