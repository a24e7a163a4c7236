package notify

import (
	"context"
	"log/slog"

	"github.com/hray3182/nudge/internal/models"
)

// Log writes notifications to the logger. It stands in for Telegram when
// no bot token is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Present(ctx context.Context, n models.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"title", n.Title,
		"body", n.Body,
		"category", string(n.Category),
		"source_id", n.SourceID,
		"kind", string(n.Kind),
		"snoozed", n.Snoozed,
	)
	return nil
}
