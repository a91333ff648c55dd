package approval

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RejectProfileMessage asks the workflow to reject a pending profile.
type RejectProfileMessage struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	Actor      ActorRef
	OnResponse func(resp *RejectProfileResponse)
}

func (m RejectProfileMessage) Type() string { return "profile.reject" }

// RejectProfileResponse reports the durable outcome plus whether the
// best-effort notification went out.
type RejectProfileResponse struct {
	Profile          *Profile
	NotificationSent bool
}

// RejectProfileHandler runs the admin rejection. No credential changes: a
// rejected account is blocked by the state machine, not by disabling
// sign-in.
type RejectProfileHandler struct {
	repo     RepositoryManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

// NewRejectProfileHandler creates a handler with sane defaults.
func NewRejectProfileHandler(repo RepositoryManager) *RejectProfileHandler {
	return &RejectProfileHandler{
		repo:     repo,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithNotifier sets the outbound notification collaborator.
func (h *RejectProfileHandler) WithNotifier(n Notifier) *RejectProfileHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit rejection events.
func (h *RejectProfileHandler) WithActivitySink(sink ActivitySink) *RejectProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RejectProfileHandler) WithLogger(logger Logger) *RejectProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RejectProfileHandler) Execute(ctx context.Context, event RejectProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile rejection",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RejectProfileHandler) execute(ctx context.Context, event RejectProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := requireAdmin(ctx, h.repo, event.Actor); err != nil {
		return err
	}

	var target *Profile
	var fromStatus ProfileStatus

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		target, err = h.repo.Profiles().GetByIDTx(ctx, tx, event.ProfileID)
		if err != nil {
			if IsProfileNotFound(err) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve profile for rejection")
		}

		if target.IsRejected() {
			return NewAlreadyRejectedError(target.ID.String())
		}

		fromStatus = target.Status
		if !CanTransition(target.Status, StatusRejected) {
			return NewInvalidTransitionError(target.Status, StatusRejected)
		}

		target, err = h.repo.Profiles().UpdateStatusTx(ctx, tx, target.ID, StatusRejected)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile status")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile rejection transaction failed")
	}

	h.recordEvent(ctx, ActivityEvent{
		EventType:  ActivityEventProfileStatusChanged,
		Actor:      event.Actor,
		UserID:     target.ID.String(),
		FromStatus: fromStatus,
		ToStatus:   target.Status,
	})

	sent := true
	if err := h.notifier.Notify(ctx, Notification{
		UserID:        target.ID,
		Action:        ActionReject,
		RecipientName: target.FullName(),
	}); err != nil {
		sent = false
		wrapped := WrapNotificationError(err)
		h.logger.Warn("rejection notification failed for profile %s: %v", target.ID, wrapped)
		h.recordEvent(ctx, ActivityEvent{
			EventType: ActivityEventNotificationFailed,
			Actor:     ActorRef{Type: "system"},
			UserID:    target.ID.String(),
			Metadata:  map[string]any{"action": string(ActionReject), "error": err.Error()},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(&RejectProfileResponse{
			Profile:          target,
			NotificationSent: sent,
		})
	}

	return nil
}

func (h *RejectProfileHandler) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during rejection: %v", err)
	}
}
