package email

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// TrialPayload carries the identity and counter fields the trial templates
// interpolate. All sends are best-effort: implementations return an error but
// callers treat it as "not sent", never as fatal.
type TrialPayload struct {
	BusinessID     string
	BusinessName   string
	OwnerName      string
	OwnerEmail     string
	CallsUsed      int
	CallsRemaining int
	DaysRemaining  int
	TrialEndDate   time.Time
	BlockReason    string
	// DaysUntilDeletion is only set for the deletion-warning template.
	DaysUntilDeletion int
}

// Notifier sends the five transactional trial emails.
type Notifier interface {
	SendWelcome(ctx context.Context, p TrialPayload) error
	SendTrialWarning(ctx context.Context, p TrialPayload) error
	SendTrialBlocked(ctx context.Context, p TrialPayload) error
	SendDeletionWarning(ctx context.Context, p TrialPayload) error
	SendAccountDeleted(ctx context.Context, p TrialPayload) error
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewSMTPNotifier, fx.As(new(Notifier))),
	),
)
