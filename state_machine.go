package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AppState is the single authoritative application state computed after
// every authentication event. Exactly one state holds at any time.
type AppState string

const (
	// StateUnauthenticated means no account is attached
	StateUnauthenticated AppState = "unauthenticated"
	// StateProfileLoading means the account is known but the profile fetch
	// is still in flight; no navigation may happen while here
	StateProfileLoading AppState = "profile_loading"
	// StatePending means the profile is awaiting admin review
	StatePending AppState = "pending_approval"
	// StateRejected is a transient pass-through: it forces a sign-out and
	// resolves to StateUnauthenticated, it is never rendered
	StateRejected AppState = "rejected"
	// StateFirstLoginRequired forces the password-reset surface; it takes
	// priority over role dashboards
	StateFirstLoginRequired AppState = "first_login_required"
	// StateAdminHome routes approved admins to their dashboard
	StateAdminHome AppState = "admin_home"
	// StateOwnerHome routes approved establishment owners to their dashboard
	StateOwnerHome AppState = "owner_home"
	// StateUnassignedRole covers approved roles with no dashboard (the fire
	// inspector today); it is logged and never defaulted to a home
	StateUnassignedRole AppState = "unassigned_role"
)

// Route is a logical navigation target. Routes are names, not a protocol.
type Route string

const (
	RouteLogin         Route = "/login"
	RouteAdminLogin    Route = "/admin-login"
	RouteOwnerLogin    Route = "/owner-login"
	RouteRegister      Route = "/register"
	RoutePending       Route = "/pending"
	RoutePasswordReset Route = "/reset-password"
	RouteAdminHome     Route = "/admin"
	RouteOwnerHome     Route = "/dashboard"
)

// Target returns the navigation target for a state. States without a target
// (loading, the rejected pass-through, unassigned roles) return false; the
// machine must not navigate for those.
func (s AppState) Target() (Route, bool) {
	switch s {
	case StateUnauthenticated:
		return RouteLogin, true
	case StatePending:
		return RoutePending, true
	case StateFirstLoginRequired:
		return RoutePasswordReset, true
	case StateAdminHome:
		return RouteAdminHome, true
	case StateOwnerHome:
		return RouteOwnerHome, true
	default:
		return "", false
	}
}

// ComputeState is the pure state function. Given the current account and
// profile it returns exactly one AppState, in the mandated priority order:
// no account, profile in flight, pending, rejected, first login, role home.
func ComputeState(account *Account, profile *Profile) AppState {
	if account == nil {
		return StateUnauthenticated
	}
	if profile == nil {
		return StateProfileLoading
	}

	// Normalize locally; a pure function must not write to its argument.
	status := profile.Status
	if status == "" {
		status = StatusPending
	}

	switch status {
	case StatusPending:
		return StatePending
	case StatusRejected:
		return StateRejected
	}

	if profile.IsFirstLogin {
		return StateFirstLoginRequired
	}

	switch profile.Role {
	case RoleAdmin:
		return StateAdminHome
	case RoleEstablishmentOwner:
		return StateOwnerHome
	default:
		return StateUnassignedRole
	}
}

// Navigator performs the navigation side effect for a state change.
type Navigator interface {
	Navigate(ctx context.Context, target Route)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, target Route)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, target Route) {
	if f != nil {
		f(ctx, target)
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, Route) {}

func normalizeNavigator(n Navigator) Navigator {
	if n == nil {
		return noopNavigator{}
	}
	return n
}

// NoticeLevel grades user-visible notices.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-visible message surfaced by the state machine.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// NoticeSink receives user-visible notices.
type NoticeSink interface {
	Show(ctx context.Context, n Notice)
}

// NoticeFunc adapts a function to the NoticeSink interface.
type NoticeFunc func(ctx context.Context, n Notice)

// Show implements NoticeSink.
func (f NoticeFunc) Show(ctx context.Context, n Notice) {
	if f != nil {
		f(ctx, n)
	}
}

type noopNoticeSink struct{}

func (noopNoticeSink) Show(context.Context, Notice) {}

func normalizeNoticeSink(s NoticeSink) NoticeSink {
	if s == nil {
		return noopNoticeSink{}
	}
	return s
}

// ProfileLoader is the read surface the state machine needs from the store.
type ProfileLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// SessionMachineOption customizes state machine construction.
type SessionMachineOption func(*SessionStateMachine)

// WithSessionMachineLogger overrides the logger.
func WithSessionMachineLogger(logger Logger) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithSessionMachineClock injects a custom clock (useful for tests).
func WithSessionMachineClock(clock func() time.Time) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithNavigator sets the navigation side-effect handler.
func WithNavigator(n Navigator) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		sm.navigator = normalizeNavigator(n)
	}
}

// WithNoticeSink sets the sink for user-visible notices.
func WithNoticeSink(s NoticeSink) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		sm.notices = normalizeNoticeSink(s)
	}
}

// WithSessionMachineActivitySink sets the audit sink.
func WithSessionMachineActivitySink(sink ActivitySink) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		sm.activity = normalizeActivitySink(sink)
	}
}

// WithSessionBroker shares an externally owned broker so other components
// can observe session replacements.
func WithSessionBroker(b *SessionBroker) SessionMachineOption {
	return func(sm *SessionStateMachine) {
		if b != nil {
			sm.broker = b
		}
	}
}

// SessionStateMachine owns the session and drives navigation. It subscribes
// to gateway auth events, loads the matching profile, and computes the one
// state the user must be in.
type SessionStateMachine struct {
	gateway  IdentityGateway
	profiles ProfileLoader

	broker    *SessionBroker
	navigator Navigator
	notices   NoticeSink
	activity  ActivitySink
	logger    Logger
	now       func() time.Time

	mu sync.Mutex
	// state starts as the zero value so the very first evaluation counts as
	// a change and drives navigation, even when it lands on unauthenticated.
	state    AppState
	fetching map[uuid.UUID]struct{}
}

// NewSessionStateMachine wires the machine to the gateway and profile store.
func NewSessionStateMachine(gateway IdentityGateway, profiles ProfileLoader, opts ...SessionMachineOption) *SessionStateMachine {
	sm := &SessionStateMachine{
		gateway:   gateway,
		profiles:  profiles,
		broker:    NewSessionBroker(),
		navigator: noopNavigator{},
		notices:   noopNoticeSink{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
		fetching:  map[uuid.UUID]struct{}{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Start subscribes to gateway auth events. It returns a stop function that
// unsubscribes the machine.
func (sm *SessionStateMachine) Start(ctx context.Context) func() {
	return sm.gateway.OnAuthStateChange(func(evt AuthEvent) {
		sm.HandleAuthEvent(ctx, evt)
	})
}

// State returns the current computed application state.
func (sm *SessionStateMachine) State() AppState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// Session returns the current session snapshot.
func (sm *SessionStateMachine) Session() *SessionObject {
	return sm.broker.Current()
}

// Broker exposes the session broker for subscribers.
func (sm *SessionStateMachine) Broker() *SessionBroker {
	return sm.broker
}

// HandleAuthEvent processes one auth state change. Safe to call repeatedly;
// evaluations that land on the same state are no-ops.
func (sm *SessionStateMachine) HandleAuthEvent(ctx context.Context, evt AuthEvent) {
	if evt.Type == AuthEventSignedOut || evt.Account == nil {
		sm.broker.Publish(&SessionObject{})
		sm.transitionTo(ctx, StateUnauthenticated)
		return
	}

	current := sm.broker.Current()
	if current.AccountID() == evt.Account.ID && current.Profile != nil {
		// Same account, profile already loaded: re-evaluate only.
		sm.apply(ctx, evt.Account, current.Profile)
		return
	}

	sm.broker.Publish(&SessionObject{Account: evt.Account, LoadingProfile: true})
	sm.transitionTo(ctx, StateProfileLoading)
	sm.loadProfile(ctx, evt.Account)
}

// Refresh refetches the profile for the current account and re-evaluates.
// Callers use it after mutations that change routing, like the first-login
// password change.
func (sm *SessionStateMachine) Refresh(ctx context.Context) {
	session := sm.broker.Current()
	if !session.Authenticated() {
		return
	}

	account := session.Account
	sm.broker.Publish(&SessionObject{Account: account, LoadingProfile: true})
	sm.loadProfile(ctx, account)
}

func (sm *SessionStateMachine) loadProfile(ctx context.Context, account *Account) {
	sm.mu.Lock()
	if _, inFlight := sm.fetching[account.ID]; inFlight {
		// Concurrent fetches for the same account collapse to one.
		sm.mu.Unlock()
		return
	}
	sm.fetching[account.ID] = struct{}{}
	sm.mu.Unlock()

	profile, err := sm.profiles.GetByID(ctx, account.ID)

	sm.mu.Lock()
	delete(sm.fetching, account.ID)
	sm.mu.Unlock()

	// Re-validate after the suspend point: a newer auth event may have
	// replaced the account while this fetch was in flight.
	if sm.broker.Current().AccountID() != account.ID {
		sm.logger.Debug("discarding stale profile fetch for account %s", account.ID)
		return
	}

	if err != nil {
		if IsProfileNotFound(err) {
			// An account with no profile row is unresolvable here; fabricating
			// a role would be unsafe, so stay non-committal.
			sm.logger.Error("no profile row for account %s: %v", account.ID, err)
			return
		}
		sm.logger.Error("profile fetch failed for account %s: %v", account.ID, err)
		sm.notices.Show(ctx, Notice{Level: NoticeError, Message: "Failed to load user profile"})
		return
	}

	if !IsValidRole(profile.Role) || !profile.Status.IsValid() {
		sm.logger.Error("profile %s carries unknown role %q or status %q", profile.ID, profile.Role, profile.Status)
		return
	}

	sm.broker.Publish(&SessionObject{Account: account, Profile: profile})
	sm.apply(ctx, account, profile)
}

func (sm *SessionStateMachine) apply(ctx context.Context, account *Account, profile *Profile) {
	next := ComputeState(account, profile)

	if next == StateRejected {
		sm.forceSignOut(ctx, account)
		return
	}

	if next == StateUnassignedRole {
		sm.logger.Warn("no dashboard route for role %q (account %s)", profile.Role, account.ID)
	}

	sm.transitionTo(ctx, next)
}

// forceSignOut handles the rejected pass-through: error notice, gateway
// sign-out, then an immediate transition back to unauthenticated.
func (sm *SessionStateMachine) forceSignOut(ctx context.Context, account *Account) {
	sm.notices.Show(ctx, Notice{Level: NoticeError, Message: "Your account has been rejected."})
	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventForcedSignOut,
		Actor:     ActorRef{Type: "system"},
		UserID:    account.ID.String(),
	})

	if err := sm.gateway.SignOut(ctx); err != nil {
		sm.logger.Error("forced sign-out failed for account %s: %v", account.ID, err)
	}

	sm.broker.Publish(&SessionObject{})
	sm.transitionTo(ctx, StateUnauthenticated)
}

// transitionTo moves to the next state, navigating exactly once per change.
// Landing on the current state again is a no-op, which is what prevents
// redirect loops and duplicate notices.
func (sm *SessionStateMachine) transitionTo(ctx context.Context, next AppState) {
	sm.mu.Lock()
	if sm.state == next {
		sm.mu.Unlock()
		return
	}
	sm.state = next
	sm.mu.Unlock()

	if next == StatePending {
		sm.notices.Show(ctx, Notice{Level: NoticeInfo, Message: "Your account is pending approval."})
	}

	if target, ok := next.Target(); ok {
		sm.navigator.Navigate(ctx, target)
	}
}

func (sm *SessionStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	if err := normalizeActivitySink(sm.activity).Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
