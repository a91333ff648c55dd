package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EstablishmentInput is one establishment row submitted at registration.
type EstablishmentInput struct {
	Name             string `json:"name" form:"name"`
	BuildingPermitNo string `json:"building_permit_no" form:"building_permit_no"`
}

// RegisterOwnerMessage carries a full owner registration: the applicant and
// at least one establishment.
type RegisterOwnerMessage struct {
	FirstName      string               `json:"first_name" form:"first_name"`
	MiddleName     string               `json:"middle_name" form:"middle_name"`
	LastName       string               `json:"last_name" form:"last_name"`
	Email          string               `json:"email" form:"email"`
	Establishments []EstablishmentInput `json:"establishments" form:"establishments"`
	UseHashid      bool
	OnResponse     func(resp *RegisterOwnerResponse)
}

func (m RegisterOwnerMessage) Type() string { return "owner.register" }

// Validate runs every field check before any write happens.
func (m RegisterOwnerMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.MiddleName, validation.Length(0, 200)),
		validation.Field(&m.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&m.Establishments, validation.Required, validation.By(validateEstablishmentInputs)),
	)
}

func validateEstablishmentInputs(value any) error {
	inputs, ok := value.([]EstablishmentInput)
	if !ok {
		return fmt.Errorf("invalid establishments payload")
	}
	for i, est := range inputs {
		if strings.TrimSpace(est.Name) == "" {
			return fmt.Errorf("establishment %d: name is required", i+1)
		}
		if strings.TrimSpace(est.BuildingPermitNo) == "" {
			return fmt.Errorf("establishment %d: building permit number is required", i+1)
		}
	}
	return nil
}

// RegisterOwnerResponse reports what registration created.
type RegisterOwnerResponse struct {
	Profile        *Profile
	Establishments []*Establishment
}

// RegisterOwnerHandler creates the account, its pending profile, and the
// submitted establishment rows.
type RegisterOwnerHandler struct {
	repo     RepositoryManager
	gateway  IdentityGateway
	activity ActivitySink
	logger   Logger
}

// NewRegisterOwnerHandler creates a handler with sane defaults.
func NewRegisterOwnerHandler(repo RepositoryManager, gateway IdentityGateway) *RegisterOwnerHandler {
	return &RegisterOwnerHandler{
		repo:     repo,
		gateway:  gateway,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterOwnerHandler) WithActivitySink(sink ActivitySink) *RegisterOwnerHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterOwnerHandler) WithLogger(logger Logger) *RegisterOwnerHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterOwnerHandler) Execute(ctx context.Context, event RegisterOwnerMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during owner registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterOwnerHandler) execute(ctx context.Context, event RegisterOwnerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	// The placeholder credential is never disclosed. The account stays
	// unusable until the approval workflow provisions the real temporary
	// credential.
	placeholder, err := PlaceholderCredential()
	if err != nil {
		return err
	}

	account, err := h.gateway.SignUp(ctx, event.Email, placeholder, SignUpMetadata{
		FirstName:  event.FirstName,
		MiddleName: event.MiddleName,
		LastName:   event.LastName,
		Role:       RoleEstablishmentOwner,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
	}

	profile := &Profile{
		ID:           account.ID,
		FirstName:    event.FirstName,
		MiddleName:   event.MiddleName,
		LastName:     event.LastName,
		Role:         RoleEstablishmentOwner,
		Status:       StatusPending,
		IsFirstLogin: true,
	}

	var created []*Establishment

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if profile, err = h.repo.Profiles().CreateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile")
		}

		for _, input := range event.Establishments {
			est := &Establishment{
				ID:               h.establishmentID(event, account.ID, input),
				OwnerID:          account.ID,
				Name:             input.Name,
				BuildingPermitNo: input.BuildingPermitNo,
				Status:           EstablishmentActive,
			}

			if est, err = h.repo.Establishments().CreateTx(ctx, tx, est); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create establishment")
			}

			created = append(created, est)
		}

		return nil
	})

	if err != nil {
		// The account already exists in the identity provider and is not
		// retracted here; operators reconcile via the audit trail.
		h.recordEvent(ctx, ActivityEvent{
			EventType: ActivityEventRegistrationPartial,
			Actor:     ActorRef{Type: "system"},
			UserID:    account.ID.String(),
			Metadata:  map[string]any{"error": err.Error()},
		})

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "owner registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterOwnerResponse{
			Profile:        profile,
			Establishments: created,
		})
	}

	return nil
}

// establishmentID derives a deterministic id from owner and permit number
// when hashids are enabled, which makes re-submitted rows idempotent.
func (h *RegisterOwnerHandler) establishmentID(event RegisterOwnerMessage, ownerID uuid.UUID, input EstablishmentInput) uuid.UUID {
	if event.UseHashid {
		if id, err := hashid.NewUUID(ownerID.String() + "/" + input.BuildingPermitNo); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (h *RegisterOwnerHandler) recordEvent(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}
