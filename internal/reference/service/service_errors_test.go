package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"refroute/internal/identity"
	"refroute/internal/platform/logger"
	"refroute/internal/reference/models"
	"refroute/internal/reference/service/mocks"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/sentinel"
)

// ServiceErrorsSuite drives the engine against mocked collaborators to cover
// the failure translation paths.
type ServiceErrorsSuite struct {
	suite.Suite
	ctrl  *gomock.Controller
	store *mocks.MockStore
	dir   *mocks.MockDirectory
	svc   *Service
	alice identity.Identity
	bob   identity.Identity
}

func TestServiceErrorsSuite(t *testing.T) {
	suite.Run(t, new(ServiceErrorsSuite))
}

func (s *ServiceErrorsSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.dir = mocks.NewMockDirectory(s.ctrl)
	s.svc = New(s.store, s.dir, testPermissions,
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return baseTime }),
		WithConfig(Config{DatastoreTimeout: 50 * time.Millisecond}),
	)
	s.alice = person("alice", "Optics Lab", "Physics")
	s.bob = person("bob", "Optics Lab", "Physics")
}

func (s *ServiceErrorsSuite) heldBy(holder identity.Identity) *models.Reference {
	refID := id.NewReferenceID()
	snap := models.SnapshotOf(holder)
	return &models.Reference{
		ID:               refID,
		RefID:            models.GenerateRefID(id.ScopeGlobal, baseTime, refID),
		Scope:            id.ScopeGlobal,
		Status:           models.StatusOpen,
		Priority:         models.PriorityMedium,
		CreatedBy:        holder.UserID,
		CreatedByDetails: snap,
		MarkedTo:         []id.UserID{holder.UserID},
		MarkedToDetails:  []models.Snapshot{snap},
		Participants:     []id.UserID{holder.UserID},
		PendingDivisions: []string{holder.Division},
		PendingLabs:      []string{holder.LabName},
		CreatedAt:        baseTime.Add(-time.Hour),
		UpdatedAt:        baseTime.Add(-time.Hour),
	}
}

func (s *ServiceErrorsSuite) expectIdentities(users ...identity.Identity) {
	for _, u := range users {
		s.dir.EXPECT().GetIdentity(gomock.Any(), u.UserID).Return(u, nil).AnyTimes()
	}
}

func (s *ServiceErrorsSuite) forward(ref *models.Reference) (*models.Reference, error) {
	return s.svc.ApplyMovement(context.Background(), officer(s.alice), id.ScopeGlobal, ref.ID, &models.MovementRequest{
		NextHolders: ids(s.bob),
		NextStatus:  string(models.StatusInProgress),
	})
}

func (s *ServiceErrorsSuite) TestStoreFailuresAreTranslated() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), dErrors.CodeTimeout},
		{"unavailable", fmt.Errorf("dial: %w", sentinel.ErrUnavailable), dErrors.CodeUnavailable},
		{"missing", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"unexpected", errors.New("disk on fire"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, gomock.Any()).Return(nil, tc.err)
			_, err := s.svc.Get(context.Background(), officer(s.alice), id.ScopeGlobal, id.NewReferenceID())
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
		})
	}
}

func (s *ServiceErrorsSuite) TestDatastoreCallsCarryTimeout() {
	s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ id.Scope, _ id.ReferenceID) (*models.Reference, error) {
			deadline, ok := ctx.Deadline()
			s.True(ok)
			s.WithinDuration(time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	_, err := s.svc.Get(context.Background(), officer(s.alice), id.ScopeGlobal, id.NewReferenceID())
	s.Require().Error(err)
	s.Equal(dErrors.CodeTimeout, dErrors.CodeOf(err))
	s.True(dErrors.Retryable(dErrors.CodeOf(err)))
}

func (s *ServiceErrorsSuite) TestStaleTokenOnCommit() {
	ref := s.heldBy(s.alice)
	s.expectIdentities(s.alice, s.bob)
	s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, ref.ID).Return(ref, nil)
	s.store.EXPECT().CommitMovement(gomock.Any(), ref.UpdatedAt, gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

	_, err := s.forward(ref)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConcurrentModification, dErrors.CodeOf(err))
}

func (s *ServiceErrorsSuite) TestCommitWritesMovementAndReference() {
	ref := s.heldBy(s.alice)
	s.expectIdentities(s.alice, s.bob)
	s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, ref.ID).Return(ref, nil)
	s.store.EXPECT().CommitMovement(gomock.Any(), ref.UpdatedAt, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ time.Time, next *models.Reference, mv *models.Movement) error {
			s.Equal(ref.ID, mv.ReferenceID)
			s.Equal(s.alice.UserID, mv.PerformedBy)
			s.Equal(models.StatusInProgress, mv.StatusOnMovement)
			s.Equal(next.UpdatedAt, mv.MovementDate)
			s.True(next.UpdatedAt.After(ref.UpdatedAt))
			s.Equal([]id.UserID{s.bob.UserID}, next.MarkedTo)
			s.Equal([]id.UserID{s.alice.UserID, s.bob.UserID}, next.Participants)
			return nil
		})

	next, err := s.forward(ref)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, next.Status)
	s.Equal([]id.UserID{s.alice.UserID}, ref.MarkedTo, "the loaded reference is not mutated")
}

func (s *ServiceErrorsSuite) TestDuplicateKeyRaceReturnsCurrentState() {
	ref := s.heldBy(s.alice)
	current := ref.Clone()
	current.MarkedTo = []id.UserID{s.bob.UserID}
	s.expectIdentities(s.alice, s.bob)
	gomock.InOrder(
		s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, ref.ID).Return(ref, nil),
		s.store.EXPECT().GetReference(gomock.Any(), id.ScopeGlobal, ref.ID).Return(current, nil),
	)
	s.store.EXPECT().FindMovementByKey(gomock.Any(), id.ScopeGlobal, ref.ID, "k-1").Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().CommitMovement(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("insert movement: %w", sentinel.ErrAlreadyUsed))

	got, err := s.svc.ApplyMovement(context.Background(), officer(s.alice), id.ScopeGlobal, ref.ID, &models.MovementRequest{
		NextHolders:    ids(s.bob),
		NextStatus:     string(models.StatusInProgress),
		IdempotencyKey: "k-1",
	})
	s.Require().NoError(err)
	s.Equal(current.MarkedTo, got.MarkedTo)
}

func (s *ServiceErrorsSuite) TestCreateRegeneratesCollidingCode() {
	s.expectIdentities(s.alice, s.bob)
	var codes []string
	s.store.EXPECT().CreateReference(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ref *models.Reference, seed *models.Movement) error {
			codes = append(codes, ref.RefID)
			s.Equal(ref.ID, seed.ReferenceID)
			if len(codes) == 1 {
				return sentinel.ErrAlreadyUsed
			}
			return nil
		}).Times(2)

	ref, err := s.svc.Create(context.Background(), officer(s.alice), id.ScopeGlobal, &models.CreateReferenceRequest{
		Subject:  "Annual report",
		MarkedTo: ids(s.bob),
	})
	s.Require().NoError(err)
	s.Len(codes, 2)
	s.NotEqual(codes[0], codes[1])
	s.Equal(codes[1], ref.RefID)
	s.Equal(models.PriorityMedium, ref.Priority)
}

func (s *ServiceErrorsSuite) TestDirectoryFailure() {
	s.dir.EXPECT().GetIdentity(gomock.Any(), s.alice.UserID).Return(identity.Identity{}, fmt.Errorf("users: %w", sentinel.ErrUnavailable))

	_, err := s.svc.Create(context.Background(), officer(s.alice), id.ScopeGlobal, &models.CreateReferenceRequest{
		Subject:  "Annual report",
		MarkedTo: []string{uuid.NewString()},
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *ServiceErrorsSuite) TestPermissionDeniedTouchesNothing() {
	_, err := s.svc.BulkApply(context.Background(), models.Actor{ID: s.alice.UserID, Role: "guest"}, id.ScopeGlobal, &models.BulkRequest{
		IDs:    []string{id.NewReferenceID().String()},
		Action: models.BulkClose,
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	_, err = s.svc.Create(context.Background(), models.Actor{}, id.ScopeGlobal, &models.CreateReferenceRequest{Subject: "x"})
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}
