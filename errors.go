package approval

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// ErrUnableToFindSession is the error when a request carries no session
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session token
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrNoEmptyString is returned when hashing an empty credential
var ErrNoEmptyString = errors.New("password can not be an empty string")

// ErrMismatchedHashAndPassword is the generic credential mismatch error
var ErrMismatchedHashAndPassword = errors.New("credentials mismatch")

const (
	TextCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	TextCodeAdminRequired      = "ADMIN_REQUIRED"
	TextCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	TextCodeAlreadyRejected    = "ALREADY_REJECTED"
	TextCodeUnknownRole        = "UNKNOWN_ROLE"
	TextCodeNotificationFailed = "NOTIFICATION_FAILED"
)

// The rich errors below are constructed fresh at every call site and carry
// only that caller's metadata. go-errors decorators mutate their receiver,
// so a shared package-level sentinel would leak one request's metadata into
// another's. Classification goes through the text code, never through
// pointer identity.

// NewProfileNotFoundError reports that an account exists in the identity
// provider but has no profile row. This is distinct from a transient fetch
// failure: callers must log it and stay non-committal rather than default
// the user to any dashboard.
func NewProfileNotFoundError(profileID string) *goerrors.Error {
	return goerrors.New("profile not found for account", goerrors.CategoryNotFound).
		WithTextCode(TextCodeProfileNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"profile_id": profileID,
		})
}

// NewAdminRequiredError reports that the acting profile lacks the admin role.
func NewAdminRequiredError(actorID string) *goerrors.Error {
	return goerrors.New("actor does not hold the admin role", goerrors.CategoryAuth).
		WithTextCode(TextCodeAdminRequired).
		WithMetadata(map[string]any{
			"actor": actorID,
		})
}

// NewInvalidTransitionError reports a status change outside the
// pending -> {approved, rejected} graph.
func NewInvalidTransitionError(from, to ProfileStatus) *goerrors.Error {
	return goerrors.New("invalid profile status transition", goerrors.CategoryConflict).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
}

// NewAlreadyRejectedError reports a second rejection of the same profile.
func NewAlreadyRejectedError(profileID string) *goerrors.Error {
	return goerrors.New("profile has already been rejected", goerrors.CategoryConflict).
		WithTextCode(TextCodeAlreadyRejected).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"profile_id": profileID,
		})
}

// NewUnknownRoleError reports a role outside the closed set coming back from
// the store.
func NewUnknownRoleError(role ProfileRole) *goerrors.Error {
	return goerrors.New("profile has an unknown or invalid role", goerrors.CategoryValidation).
		WithTextCode(TextCodeUnknownRole).
		WithMetadata(map[string]any{
			"role": role,
		})
}

func textCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsPreconditionError reports whether an approve/reject call was aborted by
// a precondition check (wrong status or insufficient privilege). No mutation
// happened when this returns true.
func IsPreconditionError(err error) bool {
	switch textCode(err) {
	case TextCodeInvalidTransition, TextCodeAlreadyRejected, TextCodeAdminRequired:
		return true
	default:
		return false
	}
}

// IsProfileNotFound distinguishes a missing profile row from transient
// store failures.
func IsProfileNotFound(err error) bool {
	return textCode(err) == TextCodeProfileNotFound
}

// IsAdminRequired reports whether the error is the admin privilege check
// failing.
func IsAdminRequired(err error) bool {
	return textCode(err) == TextCodeAdminRequired
}
