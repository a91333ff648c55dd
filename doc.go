// Package approval implements the establishment-owner onboarding lifecycle:
// registration, admin approval, and the session state machine that routes
// each account to the surface its role and status allow.
//
// Session state:
//   - ComputeState derives an AppState from the current Account and Profile.
//     It is a pure function; SessionStateMachine drives it, owning the
//     session broker, profile fetches, navigation, and notices. Fetches are
//     deduplicated per account and stale results are discarded, so the
//     session always reflects the most recent auth event.
//   - Rejected profiles never reach a surface: the machine forces a sign-out
//     and returns the session to the unauthenticated state.
//
// Approval workflow:
//   - ApproveProfileHandler and RejectProfileHandler move pending profiles
//     through the status transition graph under an admin actor. Approval
//     provisions a temporary credential through the IdentityGateway before
//     the status flips, so an approved owner can always sign in.
//   - Notification delivery is best-effort. A failed notification downgrades
//     to a warning and an audit event; the approval itself stands.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the handlers and
//     the state machine to describe status changes, forced sign-outs, and
//     partial registration failures. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking the
//     workflow.
package approval
