package approval_test

import (
	"context"
	"database/sql"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	approval "github.com/vfireinspect/go-approval"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRepositoryManager implements approval.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

// RunInTx records the call, then executes the closure with a zero-value
// transaction so the test observes exactly what the closure returned.
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Profiles() approval.Profiles {
	args := m.Called()
	return args.Get(0).(approval.Profiles)
}

func (m *MockRepositoryManager) Establishments() approval.Establishments {
	args := m.Called()
	return args.Get(0).(approval.Establishments)
}

// expectTx arms the RunInTx expectation; the closure still runs.
func expectTx(repo *MockRepositoryManager) *mock.Call {
	return repo.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).Return(nil)
}

// MockProfiles implements approval.Profiles. The embedded interface covers
// the generic repository surface; only the methods the core calls are wired.
type MockProfiles struct {
	mock.Mock
	repository.Repository[*approval.Profile]
}

func (m *MockProfiles) GetByID(ctx context.Context, id uuid.UUID) (*approval.Profile, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*approval.Profile, error) {
	args := m.Called(ctx, tx, id)
	if p, ok := args.Get(0).(*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) ListByStatus(ctx context.Context, status approval.ProfileStatus) ([]*approval.Profile, error) {
	args := m.Called(ctx, status)
	if p, ok := args.Get(0).([]*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) ListByRoleAndStatus(ctx context.Context, role approval.ProfileRole, status approval.ProfileStatus) ([]*approval.Profile, error) {
	args := m.Called(ctx, role, status)
	if p, ok := args.Get(0).([]*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) UpdateStatus(ctx context.Context, id uuid.UUID, status approval.ProfileStatus) (*approval.Profile, error) {
	args := m.Called(ctx, id, status)
	if p, ok := args.Get(0).(*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status approval.ProfileStatus) (*approval.Profile, error) {
	args := m.Called(ctx, tx, id, status)
	if p, ok := args.Get(0).(*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfiles) ClearFirstLogin(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProfiles) ClearFirstLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockProfiles) CreateTx(ctx context.Context, tx bun.IDB, record *approval.Profile, criteria ...repository.InsertCriteria) (*approval.Profile, error) {
	args := m.Called(ctx, tx, record)
	if p, ok := args.Get(0).(*approval.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEstablishments implements approval.Establishments
type MockEstablishments struct {
	mock.Mock
	repository.Repository[*approval.Establishment]
}

func (m *MockEstablishments) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*approval.Establishment, error) {
	args := m.Called(ctx, ownerID)
	if e, ok := args.Get(0).([]*approval.Establishment); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEstablishments) CountByOwner(ctx context.Context) (map[uuid.UUID]int, error) {
	args := m.Called(ctx)
	if counts, ok := args.Get(0).(map[uuid.UUID]int); ok {
		return counts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEstablishments) CreateTx(ctx context.Context, tx bun.IDB, record *approval.Establishment, criteria ...repository.InsertCriteria) (*approval.Establishment, error) {
	args := m.Called(ctx, tx, record)
	if e, ok := args.Get(0).(*approval.Establishment); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGateway implements approval.IdentityGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SignIn(ctx context.Context, email, password string) (*approval.Account, error) {
	args := m.Called(ctx, email, password)
	if a, ok := args.Get(0).(*approval.Account); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockGateway) SignUp(ctx context.Context, email, password string, meta approval.SignUpMetadata) (*approval.Account, error) {
	args := m.Called(ctx, email, password, meta)
	if a, ok := args.Get(0).(*approval.Account); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGateway) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *MockGateway) UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	args := m.Called(ctx, accountID, newPassword)
	return args.Error(0)
}

func (m *MockGateway) SetCredential(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	args := m.Called(ctx, accountID, newPassword)
	return args.Error(0)
}

func (m *MockGateway) OnAuthStateChange(fn func(approval.AuthEvent)) func() {
	args := m.Called(fn)
	if stop, ok := args.Get(0).(func()); ok {
		return stop
	}
	return func() {}
}

// MockNotifier implements approval.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n approval.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockActivitySink implements approval.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event approval.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fakeGateway is a hand-rolled gateway for state machine tests: it lets the
// test drive the event stream directly.
type fakeGateway struct {
	mu        sync.Mutex
	listeners []func(approval.AuthEvent)
	signOuts  int
	signOutFn func(ctx context.Context) error
}

func (g *fakeGateway) SignIn(ctx context.Context, email, password string) (*approval.Account, error) {
	return nil, nil
}

func (g *fakeGateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	g.signOuts++
	fn := g.signOutFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (g *fakeGateway) SignOutCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signOuts
}

func (g *fakeGateway) SignUp(ctx context.Context, email, password string, meta approval.SignUpMetadata) (*approval.Account, error) {
	return nil, nil
}

func (g *fakeGateway) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return nil
}

func (g *fakeGateway) UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	return nil
}

func (g *fakeGateway) SetCredential(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	return nil
}

func (g *fakeGateway) OnAuthStateChange(fn func(approval.AuthEvent)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
	return func() {}
}

func (g *fakeGateway) Emit(event approval.AuthEvent) {
	g.mu.Lock()
	listeners := append([]func(approval.AuthEvent){}, g.listeners...)
	g.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

// profileStore is a tiny in-memory ProfileLoader for state machine tests.
type profileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*approval.Profile
	err      error
	fetches  int
	gate     chan struct{}
	started  chan struct{}
}

func newProfileStore() *profileStore {
	return &profileStore{profiles: map[uuid.UUID]*approval.Profile{}}
}

func (s *profileStore) put(p *approval.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *profileStore) GetByID(ctx context.Context, id uuid.UUID) (*approval.Profile, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.gate
	started := s.started
	err := s.err
	p := s.profiles[id]
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, approval.NewProfileNotFoundError(id.String())
	}
	return p, nil
}

func (s *profileStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// navRecorder captures navigation calls in order.
type navRecorder struct {
	mu     sync.Mutex
	visits []approval.Route
}

func (n *navRecorder) Navigate(_ context.Context, target approval.Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, target)
}

func (n *navRecorder) Visits() []approval.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approval.Route{}, n.visits...)
}

// noticeRecorder captures notices shown to the user.
type noticeRecorder struct {
	mu      sync.Mutex
	notices []approval.Notice
}

func (n *noticeRecorder) Show(_ context.Context, notice approval.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *noticeRecorder) Notices() []approval.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]approval.Notice{}, n.notices...)
}
