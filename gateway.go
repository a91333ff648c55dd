package approval

import (
	"context"

	"github.com/google/uuid"
)

// Account is the identity-provider record the core is allowed to see: the
// stable id shared with the profile row plus the sign-in email. Credentials
// and session storage stay inside the gateway.
type Account struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthEventType enumerates the auth state changes pushed by the gateway.
type AuthEventType string

const (
	// AuthEventInitialSession fires once on bootstrap with any restored session
	AuthEventInitialSession AuthEventType = "INITIAL_SESSION"
	// AuthEventSignedIn fires after a successful credential check
	AuthEventSignedIn AuthEventType = "SIGNED_IN"
	// AuthEventSignedOut fires after sign-out, forced or voluntary
	AuthEventSignedOut AuthEventType = "SIGNED_OUT"
	// AuthEventTokenRefreshed fires when the gateway rotates the session token
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
)

// AuthEvent is a single auth state change. Account is nil for signed-out
// events.
type AuthEvent struct {
	Type    AuthEventType
	Account *Account
}

// SignUpMetadata is the profile seed recorded alongside a new account.
type SignUpMetadata struct {
	FirstName  string      `json:"first_name"`
	MiddleName string      `json:"middle_name,omitempty"`
	LastName   string      `json:"last_name"`
	Role       ProfileRole `json:"role"`
}

// IdentityGateway is the capability contract for the external identity
// provider. The core never reimplements credential storage; it consumes
// these operations and reacts to the event stream.
type IdentityGateway interface {
	SignIn(ctx context.Context, email, password string) (*Account, error)
	SignOut(ctx context.Context) error
	SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Account, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error

	// SetCredential is the admin-privileged variant used by the approval
	// workflow to provision a temporary credential on someone else's account.
	SetCredential(ctx context.Context, accountID uuid.UUID, newPassword string) error

	// OnAuthStateChange registers a listener for auth events and returns an
	// unsubscribe function.
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
}
