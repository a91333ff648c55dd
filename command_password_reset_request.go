package approval

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// PasswordResetRequestMessage asks the identity gateway to mail a reset link.
type PasswordResetRequestMessage struct {
	Email      string `json:"email" form:"email"`
	RedirectTo string `json:"redirect_to" form:"redirect_to"`
	OnResponse func()
}

func (m PasswordResetRequestMessage) Type() string { return "account.password.reset.request" }

func (m PasswordResetRequestMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
	)
}

// PasswordResetRequestHandler delegates reset delivery to the gateway. It
// reports success regardless of whether the email is registered, so the
// endpoint cannot be used to probe for accounts.
type PasswordResetRequestHandler struct {
	gateway IdentityGateway
	logger  Logger
}

// NewPasswordResetRequestHandler creates a handler with sane defaults.
func NewPasswordResetRequestHandler(gateway IdentityGateway) *PasswordResetRequestHandler {
	return &PasswordResetRequestHandler{
		gateway: gateway,
		logger:  defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *PasswordResetRequestHandler) WithLogger(logger Logger) *PasswordResetRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *PasswordResetRequestHandler) Execute(ctx context.Context, event PasswordResetRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *PasswordResetRequestHandler) execute(ctx context.Context, event PasswordResetRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	if err := h.gateway.ResetPasswordForEmail(ctx, event.Email, event.RedirectTo); err != nil {
		h.logger.Warn("password reset delivery failed for %s: %v", event.Email, err)
	}

	if event.OnResponse != nil {
		event.OnResponse()
	}

	return nil
}
