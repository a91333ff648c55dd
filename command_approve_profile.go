package approval

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ApproveProfileMessage asks the workflow to approve a pending profile.
type ApproveProfileMessage struct {
	ProfileID  uuid.UUID `json:"profile_id"`
	Actor      ActorRef
	OnResponse func(resp *ApproveProfileResponse)
}

func (m ApproveProfileMessage) Type() string { return "profile.approve" }

// ApproveProfileResponse reports the durable outcome plus whether the
// best-effort notification went out.
type ApproveProfileResponse struct {
	Profile             *Profile
	TemporaryCredential string
	NotificationSent    bool
}

// ApproveProfileHandler runs the admin approval: precondition checks, a
// temporary credential on the target account, the status flip, and a
// best-effort notification.
type ApproveProfileHandler struct {
	repo        RepositoryManager
	gateway     IdentityGateway
	notifier    Notifier
	activity    ActivitySink
	logger      Logger
	credentials func() (string, error)
}

// NewApproveProfileHandler creates a handler with sane defaults.
func NewApproveProfileHandler(repo RepositoryManager, gateway IdentityGateway) *ApproveProfileHandler {
	return &ApproveProfileHandler{
		repo:        repo,
		gateway:     gateway,
		notifier:    noopNotifier{},
		activity:    noopActivitySink{},
		logger:      defLogger{},
		credentials: GenerateTemporaryCredential,
	}
}

// WithNotifier sets the outbound notification collaborator.
func (h *ApproveProfileHandler) WithNotifier(n Notifier) *ApproveProfileHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit approval events.
func (h *ApproveProfileHandler) WithActivitySink(sink ActivitySink) *ApproveProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ApproveProfileHandler) WithLogger(logger Logger) *ApproveProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithCredentialGenerator overrides temporary credential generation (tests).
func (h *ApproveProfileHandler) WithCredentialGenerator(fn func() (string, error)) *ApproveProfileHandler {
	if fn != nil {
		h.credentials = fn
	}
	return h
}

func (h *ApproveProfileHandler) Execute(ctx context.Context, event ApproveProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile approval",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ApproveProfileHandler) execute(ctx context.Context, event ApproveProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := requireAdmin(ctx, h.repo, event.Actor); err != nil {
		return err
	}

	var target *Profile
	var fromStatus ProfileStatus
	var temp string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		target, err = h.repo.Profiles().GetByIDTx(ctx, tx, event.ProfileID)
		if err != nil {
			if IsProfileNotFound(err) {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve profile for approval")
		}

		fromStatus = target.Status
		if !CanTransition(target.Status, StatusApproved) {
			return NewInvalidTransitionError(target.Status, StatusApproved)
		}

		temp, err = h.credentials()
		if err != nil {
			return err
		}

		// Preconditions passed: provision the temporary credential first so
		// the approved account is immediately usable, then flip the status.
		// is_first_login stays true, which later forces the password change.
		// If the status update below fails the transaction rolls back but the
		// credential change sticks; the profile stays pending, so the account
		// still cannot reach a dashboard, and a retried approval overwrites
		// the credential with a fresh one.
		if err := h.gateway.SetCredential(ctx, target.ID, temp); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set temporary credential")
		}

		target, err = h.repo.Profiles().UpdateStatusTx(ctx, tx, target.ID, StatusApproved)
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile approval transaction failed")
	}

	h.recordStatusChange(ctx, event.Actor, target, fromStatus)

	sent := h.notify(ctx, target, Notification{
		UserID:              target.ID,
		Action:              ActionApprove,
		RecipientName:       target.FullName(),
		TemporaryCredential: temp,
	})

	if event.OnResponse != nil {
		event.OnResponse(&ApproveProfileResponse{
			Profile:             target,
			TemporaryCredential: temp,
			NotificationSent:    sent,
		})
	}

	return nil
}

// notify delivers the outcome notification. Failure downgrades to a warning
// and an audit event; the approval itself is already durable.
func (h *ApproveProfileHandler) notify(ctx context.Context, target *Profile, n Notification) bool {
	if err := h.notifier.Notify(ctx, n); err != nil {
		wrapped := WrapNotificationError(err)
		h.logger.Warn("approval notification failed for profile %s: %v", target.ID, wrapped)
		h.recordEvent(ctx, ActivityEvent{
			EventType: ActivityEventNotificationFailed,
			Actor:     ActorRef{Type: "system"},
			UserID:    target.ID.String(),
			Metadata:  map[string]any{"action": string(n.Action), "error": err.Error()},
		})
		return false
	}
	return true
}

func (h *ApproveProfileHandler) recordStatusChange(ctx context.Context, actor ActorRef, target *Profile, from ProfileStatus) {
	h.recordEvent(ctx, ActivityEvent{
		EventType:  ActivityEventProfileStatusChanged,
		Actor:      actor,
		UserID:     target.ID.String(),
		FromStatus: from,
		ToStatus:   target.Status,
	})
}

func (h *ApproveProfileHandler) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during approval: %v", err)
	}
}

// requireAdmin verifies the acting profile holds the admin role and has
// itself been approved. Nothing is mutated before this check passes.
func requireAdmin(ctx context.Context, repo RepositoryManager, actor ActorRef) error {
	actorID, err := uuid.Parse(actor.ID)
	if err != nil {
		return NewAdminRequiredError(actor.ID)
	}

	profile, err := repo.Profiles().GetByID(ctx, actorID)
	if err != nil {
		if IsProfileNotFound(err) {
			return NewAdminRequiredError(actor.ID)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not verify acting profile")
	}

	if profile.Role != RoleAdmin || !profile.IsApproved() {
		return NewAdminRequiredError(actor.ID).WithMetadata(map[string]any{
			"role": profile.Role,
		})
	}

	return nil
}
