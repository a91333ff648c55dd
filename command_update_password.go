package approval

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdatePasswordMessage changes the credential of an authenticated account.
// Used by the first-login flow, after which the caller re-evaluates session
// state via SessionStateMachine.Refresh.
type UpdatePasswordMessage struct {
	AccountID   uuid.UUID `json:"account_id"`
	NewPassword string    `json:"new_password" form:"new_password"`
	OnResponse  func(profile *Profile)
}

func (m UpdatePasswordMessage) Type() string { return "account.password.update" }

func (m UpdatePasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.AccountID, validation.Required, validation.By(func(any) error {
			if m.AccountID == uuid.Nil {
				return goerrors.New("account id is required", goerrors.CategoryValidation)
			}
			return nil
		})),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

// UpdatePasswordHandler updates the gateway credential and, when the profile
// is in its first login, clears the first-login marker so the next state
// evaluation routes to the role home.
type UpdatePasswordHandler struct {
	repo     RepositoryManager
	gateway  IdentityGateway
	activity ActivitySink
	logger   Logger
}

// NewUpdatePasswordHandler creates a handler with sane defaults.
func NewUpdatePasswordHandler(repo RepositoryManager, gateway IdentityGateway) *UpdatePasswordHandler {
	return &UpdatePasswordHandler{
		repo:     repo,
		gateway:  gateway,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to record password updates.
func (h *UpdatePasswordHandler) WithActivitySink(sink ActivitySink) *UpdatePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdatePasswordHandler) WithLogger(logger Logger) *UpdatePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdatePasswordHandler) Execute(ctx context.Context, event UpdatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdatePasswordHandler) execute(ctx context.Context, event UpdatePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password update payload")
	}

	if err := h.gateway.UpdatePassword(ctx, event.AccountID, event.NewPassword); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "could not update credential")
	}

	var profile *Profile

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		profile, err = h.repo.Profiles().GetByIDTx(ctx, tx, event.AccountID)
		if err != nil {
			return err
		}

		if !profile.IsFirstLogin {
			return nil
		}

		if err := h.repo.Profiles().ClearFirstLoginTx(ctx, tx, event.AccountID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not clear first login flag")
		}
		profile.IsFirstLogin = false

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password update transaction failed")
	}

	h.recordEvent(ctx, ActivityEvent{
		EventType: ActivityEventPasswordUpdated,
		Actor:     ActorRef{ID: event.AccountID.String(), Type: "user"},
		UserID:    event.AccountID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(profile)
	}

	return nil
}

func (h *UpdatePasswordHandler) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password update: %v", err)
	}
}
