package approval

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// NotificationAction identifies the approval outcome being communicated.
type NotificationAction string

const (
	// ActionApprove notifies the recipient their account was approved
	ActionApprove NotificationAction = "approve"
	// ActionReject notifies the recipient their account was rejected
	ActionReject NotificationAction = "reject"
)

// Notification carries everything the outbound sender needs: the recipient,
// the action, and the temporary credential for approvals.
type Notification struct {
	UserID              uuid.UUID
	Action              NotificationAction
	RecipientName       string
	TemporaryCredential string
}

// Notifier delivers approval outcome notifications. Delivery is best-effort
// with respect to the workflow: a failed Notify never rolls back the status
// change that triggered it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// WrapNotificationError tags a delivery failure so callers can downgrade it
// to a warning instead of failing the workflow.
func WrapNotificationError(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "approval notification failed").
		WithTextCode(TextCodeNotificationFailed)
}
