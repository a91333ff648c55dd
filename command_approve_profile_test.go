package approval_test

import (
	"context"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	approval "github.com/vfireinspect/go-approval"
)

func adminActor(t *testing.T, profiles *MockProfiles) approval.ActorRef {
	t.Helper()
	adminID := uuid.New()
	profiles.On("GetByID", mock.Anything, adminID).Return(&approval.Profile{
		ID:     adminID,
		Role:   approval.RoleAdmin,
		Status: approval.StatusApproved,
	}, nil).Once()
	return approval.ActorRef{ID: adminID.String(), Type: "admin"}
}

func TestApproveProfileHappyPath(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}
	sink := &MockActivitySink{}
	notifier := &MockNotifier{}

	actor := adminActor(t, profiles)

	targetID := uuid.New()
	pending := &approval.Profile{
		ID:           targetID,
		FirstName:    "Owen",
		LastName:     "Reyes",
		Role:         approval.RoleEstablishmentOwner,
		Status:       approval.StatusPending,
		IsFirstLogin: true,
	}
	approved := &approval.Profile{
		ID:           targetID,
		FirstName:    "Owen",
		LastName:     "Reyes",
		Role:         approval.RoleEstablishmentOwner,
		Status:       approval.StatusApproved,
		IsFirstLogin: true,
	}

	repo.On("Profiles").Return(profiles)
	expectTx(repo).Once()

	profiles.On("GetByIDTx", mock.Anything, mock.Anything, targetID).Return(pending, nil).Once()
	profiles.On("UpdateStatusTx", mock.Anything, mock.Anything, targetID, approval.StatusApproved).
		Return(approved, nil).Once()

	gateway.On("SetCredential", mock.Anything, targetID, "temp-secret-123").Return(nil).Once()

	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n approval.Notification) bool {
		return n.UserID == targetID &&
			n.Action == approval.ActionApprove &&
			n.RecipientName == "Owen Reyes" &&
			n.TemporaryCredential == "temp-secret-123"
	})).Return(nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt approval.ActivityEvent) bool {
		return evt.EventType == approval.ActivityEventProfileStatusChanged &&
			evt.UserID == targetID.String() &&
			evt.FromStatus == approval.StatusPending &&
			evt.ToStatus == approval.StatusApproved
	})).Return(nil).Once()

	var resp *approval.ApproveProfileResponse
	handler := approval.NewApproveProfileHandler(repo, gateway).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(testLogger{}).
		WithCredentialGenerator(func() (string, error) { return "temp-secret-123", nil })

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID:  targetID,
		Actor:      actor,
		OnResponse: func(r *approval.ApproveProfileResponse) { resp = r },
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, approval.StatusApproved, resp.Profile.Status)
	assert.Equal(t, "temp-secret-123", resp.TemporaryCredential)
	assert.True(t, resp.NotificationSent)
	// The first-login flag is untouched by approval; the owner still has to
	// change the temporary credential.
	assert.True(t, resp.Profile.IsFirstLogin)

	repo.AssertExpectations(t)
	profiles.AssertExpectations(t)
	gateway.AssertExpectations(t)
	notifier.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestApproveProfileRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}

	ownerID := uuid.New()
	profiles.On("GetByID", mock.Anything, ownerID).Return(&approval.Profile{
		ID:     ownerID,
		Role:   approval.RoleEstablishmentOwner,
		Status: approval.StatusApproved,
	}, nil).Once()

	repo.On("Profiles").Return(profiles)

	handler := approval.NewApproveProfileHandler(repo, gateway).WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID: uuid.New(),
		Actor:     approval.ActorRef{ID: ownerID.String(), Type: "user"},
	})

	require.Error(t, err)
	assert.True(t, approval.IsAdminRequired(err))

	gateway.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprovePendingAdminCannotAct(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}

	adminID := uuid.New()
	profiles.On("GetByID", mock.Anything, adminID).Return(&approval.Profile{
		ID:     adminID,
		Role:   approval.RoleAdmin,
		Status: approval.StatusPending,
	}, nil).Once()

	repo.On("Profiles").Return(profiles)

	handler := approval.NewApproveProfileHandler(repo, gateway).WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID: uuid.New(),
		Actor:     approval.ActorRef{ID: adminID.String(), Type: "admin"},
	})

	require.Error(t, err)
	assert.True(t, approval.IsAdminRequired(err))
}

func TestApproveNonPendingFailsPrecondition(t *testing.T) {
	for _, status := range []approval.ProfileStatus{approval.StatusApproved, approval.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			repo := &MockRepositoryManager{}
			profiles := &MockProfiles{}
			gateway := &MockGateway{}
			notifier := &MockNotifier{}

			actor := adminActor(t, profiles)

			targetID := uuid.New()
			profiles.On("GetByIDTx", mock.Anything, mock.Anything, targetID).Return(&approval.Profile{
				ID:     targetID,
				Role:   approval.RoleEstablishmentOwner,
				Status: status,
			}, nil).Once()

			repo.On("Profiles").Return(profiles)
			expectTx(repo).Once()

			handler := approval.NewApproveProfileHandler(repo, gateway).
				WithNotifier(notifier).
				WithLogger(testLogger{})

			err := handler.Execute(ctx, approval.ApproveProfileMessage{
				ProfileID: targetID,
				Actor:     actor,
			})

			require.Error(t, err)
			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, approval.TextCodeInvalidTransition, richErr.TextCode)
			assert.True(t, approval.IsPreconditionError(err))

			// Nothing was provisioned or announced for a failed precondition.
			gateway.AssertNotCalled(t, "SetCredential", mock.Anything, mock.Anything, mock.Anything)
			notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
			profiles.AssertNotCalled(t, "UpdateStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestApproveProfileNotFound(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}

	actor := adminActor(t, profiles)

	targetID := uuid.New()
	profiles.On("GetByIDTx", mock.Anything, mock.Anything, targetID).
		Return(nil, approval.NewProfileNotFoundError(targetID.String())).Once()

	repo.On("Profiles").Return(profiles)
	expectTx(repo).Once()

	handler := approval.NewApproveProfileHandler(repo, gateway).WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID: targetID,
		Actor:     actor,
	})

	require.Error(t, err)
	assert.True(t, approval.IsProfileNotFound(err))
}

// A failed status update rolls the transaction back after the credential has
// already been provisioned on the gateway. The profile must stay pending and
// nothing may be announced; a retried approval issues a fresh credential.
func TestApproveStatusUpdateFailureLeavesProfilePending(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}
	notifier := &MockNotifier{}

	actor := adminActor(t, profiles)

	targetID := uuid.New()
	pending := &approval.Profile{ID: targetID, Role: approval.RoleEstablishmentOwner, Status: approval.StatusPending}

	repo.On("Profiles").Return(profiles)
	expectTx(repo).Once()

	profiles.On("GetByIDTx", mock.Anything, mock.Anything, targetID).Return(pending, nil).Once()
	gateway.On("SetCredential", mock.Anything, targetID, mock.AnythingOfType("string")).Return(nil).Once()
	profiles.On("UpdateStatusTx", mock.Anything, mock.Anything, targetID, approval.StatusApproved).
		Return(nil, fmt.Errorf("db connection lost")).Once()

	responded := false
	handler := approval.NewApproveProfileHandler(repo, gateway).
		WithNotifier(notifier).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID:  targetID,
		Actor:      actor,
		OnResponse: func(*approval.ApproveProfileResponse) { responded = true },
	})

	require.Error(t, err)
	assert.False(t, responded)

	// The credential call happened and is not rolled back; the notification
	// never goes out for a failed approval.
	gateway.AssertExpectations(t)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestApproveNotificationFailureDowngrades(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepositoryManager{}
	profiles := &MockProfiles{}
	gateway := &MockGateway{}
	sink := &MockActivitySink{}
	notifier := &MockNotifier{}

	actor := adminActor(t, profiles)

	targetID := uuid.New()
	pending := &approval.Profile{ID: targetID, Role: approval.RoleEstablishmentOwner, Status: approval.StatusPending}
	approved := &approval.Profile{ID: targetID, Role: approval.RoleEstablishmentOwner, Status: approval.StatusApproved}

	repo.On("Profiles").Return(profiles)
	expectTx(repo).Once()

	profiles.On("GetByIDTx", mock.Anything, mock.Anything, targetID).Return(pending, nil).Once()
	profiles.On("UpdateStatusTx", mock.Anything, mock.Anything, targetID, approval.StatusApproved).
		Return(approved, nil).Once()
	gateway.On("SetCredential", mock.Anything, targetID, mock.Anything).Return(nil).Once()

	notifier.On("Notify", mock.Anything, mock.Anything).
		Return(fmt.Errorf("smtp unavailable")).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt approval.ActivityEvent) bool {
		return evt.EventType == approval.ActivityEventProfileStatusChanged
	})).Return(nil).Once()
	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt approval.ActivityEvent) bool {
		return evt.EventType == approval.ActivityEventNotificationFailed &&
			evt.UserID == targetID.String()
	})).Return(nil).Once()

	var resp *approval.ApproveProfileResponse
	handler := approval.NewApproveProfileHandler(repo, gateway).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{
		ProfileID:  targetID,
		Actor:      actor,
		OnResponse: func(r *approval.ApproveProfileResponse) { resp = r },
	})

	// The approval stands; only the notification is reported as unsent.
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, approval.StatusApproved, resp.Profile.Status)
	assert.False(t, resp.NotificationSent)

	sink.AssertExpectations(t)
}

func TestApproveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &MockRepositoryManager{}
	gateway := &MockGateway{}

	handler := approval.NewApproveProfileHandler(repo, gateway).WithLogger(testLogger{})

	err := handler.Execute(ctx, approval.ApproveProfileMessage{ProfileID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
