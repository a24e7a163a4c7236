package models

import (
	"context"
	"time"
)

// TriggerRunner invokes a callback at a wall-clock instant. Delivery is
// at-least-once.
type TriggerRunner interface {
	Arm(ctx context.Context, at time.Time, payload TriggerPayload) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
}

type Notifier interface {
	Present(ctx context.Context, n Notification) error
}

type PreferenceProvider interface {
	DefaultLeadMinutes(ctx context.Context) (int, error)
	NotificationsEnabledFor(ctx context.Context, c Category) (bool, error)
}
