package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"refroute/internal/reference/models"
	"refroute/internal/reference/query"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

// referenceStore is the method set both implementations share.
type referenceStore interface {
	CreateReference(ctx context.Context, ref *models.Reference, seed *models.Movement) error
	GetReference(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error)
	ListReferences(ctx context.Context, spec query.Spec) ([]*models.Reference, int, error)
	CommitMovement(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference, mv *models.Movement) error
	UpdateReference(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference) error
	FindMovementByKey(ctx context.Context, scope id.Scope, refID id.ReferenceID, key string) (*models.Movement, error)
	ListMovements(ctx context.Context, scope id.Scope, refID id.ReferenceID, after *MovementCursor, limit int) ([]*models.Movement, error)
	LatestMovement(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Movement, error)
	Dashboard(ctx context.Context, spec query.DashboardSpec) (models.Dashboard, error)
	ListHeldBy(ctx context.Context, scope id.Scope, user id.UserID, cursor HeldByCursor, limit int) ([]*models.Reference, error)
	RefreshHolders(ctx context.Context, scope id.Scope, batch []HolderRefresh) ([]id.ReferenceID, error)
}

var (
	_ referenceStore = (*InMemoryStore)(nil)
	_ referenceStore = (*PostgresStore)(nil)
)

// contractSuite holds the behaviour every store must show. Concrete suites
// embed it and assign store in SetupTest.
type contractSuite struct {
	suite.Suite
	store referenceStore

	creator models.Snapshot
	alice   models.Snapshot
	bob     models.Snapshot
}

func (s *contractSuite) initUsers() {
	s.creator = snapshot(newUser(), "creator", "Optics Lab", "Physics")
	s.alice = snapshot(newUser(), "alice", "Optics Lab", "Physics")
	s.bob = snapshot(newUser(), "bob", "Materials Lab", "Chemistry")
}

func (s *contractSuite) create(scope id.Scope, holder models.Snapshot, createdAt time.Time) *models.Reference {
	ref, seed := newFixture(scope, s.creator, holder, createdAt)
	s.Require().NoError(s.store.CreateReference(context.Background(), ref, seed))
	return ref
}

func (s *contractSuite) TestCreateAndGet() {
	ctx := context.Background()

	s.Run("round trips the reference with its seed movement", func() {
		ref := s.create(id.ScopeLocal, s.alice, fixtureTime)

		got, err := s.store.GetReference(ctx, id.ScopeLocal, ref.ID)
		s.Require().NoError(err)
		s.Equal(ref, got)

		ledger, err := s.store.ListMovements(ctx, id.ScopeLocal, ref.ID, nil, 0)
		s.Require().NoError(err)
		s.Require().Len(ledger, 1)
		s.Equal(models.ActionCreated, ledger[0].Action)
		s.Equal([]id.UserID{s.alice.UserID}, ledger[0].MarkedTo)
	})

	s.Run("partitions are separate", func() {
		ref := s.create(id.ScopeGlobal, s.bob, fixtureTime)

		_, err := s.store.GetReference(ctx, id.ScopeLocal, ref.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects a duplicate reference", func() {
		ref, seed := newFixture(id.ScopeLocal, s.creator, s.alice, fixtureTime)
		s.Require().NoError(s.store.CreateReference(ctx, ref, seed))

		dup, dupSeed := newFixture(id.ScopeLocal, s.creator, s.alice, fixtureTime)
		dup.RefID = ref.RefID
		err := s.store.CreateReference(ctx, dup, dupSeed)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.GetReference(ctx, id.ScopeLocal, id.NewReferenceID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestCommitMovement() {
	ctx := context.Background()

	s.Run("applies reference update and ledger entry together", func() {
		ref := s.create(id.ScopeLocal, s.alice, fixtureTime)
		next, mv := handOff(ref, s.alice, s.bob, models.StatusInProgress, "k-1", fixtureTime.Add(time.Hour))

		s.Require().NoError(s.store.CommitMovement(ctx, ref.UpdatedAt, next, mv))

		got, err := s.store.GetReference(ctx, id.ScopeLocal, ref.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, got.Status)
		s.Equal([]id.UserID{s.bob.UserID}, got.MarkedTo)
		s.Equal(next.UpdatedAt, got.UpdatedAt)

		ledger, err := s.store.ListMovements(ctx, id.ScopeLocal, ref.ID, nil, 0)
		s.Require().NoError(err)
		s.Len(ledger, 2)
	})

	s.Run("stale token writes nothing", func() {
		ref := s.create(id.ScopeLocal, s.alice, fixtureTime)
		next, mv := handOff(ref, s.alice, s.bob, models.StatusInProgress, "", fixtureTime.Add(time.Hour))

		err := s.store.CommitMovement(ctx, ref.UpdatedAt.Add(-time.Second), next, mv)
		s.ErrorIs(err, sentinel.ErrConflict)

		got, err := s.store.GetReference(ctx, id.ScopeLocal, ref.ID)
		s.Require().NoError(err)
		s.Equal(ref.UpdatedAt, got.UpdatedAt)
		s.Equal(models.StatusOpen, got.Status)

		ledger, err := s.store.ListMovements(ctx, id.ScopeLocal, ref.ID, nil, 0)
		s.Require().NoError(err)
		s.Len(ledger, 1)
	})

	s.Run("duplicate idempotency key writes nothing", func() {
		ref := s.create(id.ScopeGlobal, s.alice, fixtureTime)
		first, mv := handOff(ref, s.alice, s.bob, models.StatusInProgress, "retry-1", fixtureTime.Add(time.Hour))
		s.Require().NoError(s.store.CommitMovement(ctx, ref.UpdatedAt, first, mv))

		second, dup := handOff(first, s.bob, s.alice, models.StatusInProgress, "retry-1", fixtureTime.Add(2*time.Hour))
		err := s.store.CommitMovement(ctx, first.UpdatedAt, second, dup)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)

		got, err := s.store.GetReference(ctx, id.ScopeGlobal, ref.ID)
		s.Require().NoError(err)
		s.Equal([]id.UserID{s.bob.UserID}, got.MarkedTo)

		found, err := s.store.FindMovementByKey(ctx, id.ScopeGlobal, ref.ID, "retry-1")
		s.Require().NoError(err)
		s.Equal(mv.ID, found.ID)
	})

	s.Run("missing reference is not found", func() {
		ref, _ := newFixture(id.ScopeLocal, s.creator, s.alice, fixtureTime)
		next, mv := handOff(ref, s.alice, s.bob, models.StatusInProgress, "", fixtureTime)
		err := s.store.CommitMovement(ctx, ref.UpdatedAt, next, mv)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestConcurrentCommitsOnOneToken() {
	ctx := context.Background()
	ref := s.create(id.ScopeGlobal, s.alice, fixtureTime)

	toBob, mvBob := handOff(ref, s.alice, s.bob, models.StatusInProgress, "", fixtureTime.Add(time.Minute))
	toCreator, mvCreator := handOff(ref, s.alice, s.creator, models.StatusInProgress, "", fixtureTime.Add(time.Minute))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = s.store.CommitMovement(ctx, ref.UpdatedAt, toBob, mvBob)
	}()
	go func() {
		defer wg.Done()
		errs[1] = s.store.CommitMovement(ctx, ref.UpdatedAt, toCreator, mvCreator)
	}()
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, sentinel.ErrConflict):
			conflicts++
		}
	}
	s.Equal(1, ok)
	s.Equal(1, conflicts)

	ledger, err := s.store.ListMovements(ctx, id.ScopeGlobal, ref.ID, nil, 0)
	s.Require().NoError(err)
	s.Len(ledger, 2)

	got, err := s.store.GetReference(ctx, id.ScopeGlobal, ref.ID)
	s.Require().NoError(err)
	s.Equal(ledger[1].MarkedTo, got.MarkedTo)
}

func (s *contractSuite) TestUpdateReference() {
	ctx := context.Background()
	ref := s.create(id.ScopeLocal, s.alice, fixtureTime)

	changed := ref.Clone()
	changed.Priority = models.PriorityHigh
	changed.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, fixtureTime)
	s.Require().NoError(s.store.UpdateReference(ctx, ref.UpdatedAt, changed))

	again := ref.Clone()
	again.Priority = models.PriorityLow
	s.ErrorIs(s.store.UpdateReference(ctx, ref.UpdatedAt, again), sentinel.ErrConflict)

	got, err := s.store.GetReference(ctx, id.ScopeLocal, ref.ID)
	s.Require().NoError(err)
	s.Equal(models.PriorityHigh, got.Priority)
}

func (s *contractSuite) TestLedgerPaging() {
	ctx := context.Background()
	ref := s.create(id.ScopeGlobal, s.alice, fixtureTime)

	current := ref
	holders := []models.Snapshot{s.bob, s.alice, s.bob, s.alice}
	performer := s.alice
	for i, next := range holders {
		updated, mv := handOff(current, performer, next, models.StatusInProgress, "", fixtureTime.Add(time.Duration(i+1)*time.Hour))
		s.Require().NoError(s.store.CommitMovement(ctx, current.UpdatedAt, updated, mv))
		current, performer = updated, next
	}

	var all []*models.Movement
	var cursor *MovementCursor
	for {
		page, err := s.store.ListMovements(ctx, id.ScopeGlobal, ref.ID, cursor, 2)
		s.Require().NoError(err)
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		last := page[len(page)-1]
		cursor = &MovementCursor{Date: last.MovementDate, ID: last.ID}
	}
	s.Require().Len(all, 5)
	for i := 1; i < len(all); i++ {
		s.False(all[i].MovementDate.Before(all[i-1].MovementDate))
	}

	latest, err := s.store.LatestMovement(ctx, id.ScopeGlobal, ref.ID)
	s.Require().NoError(err)
	s.Equal(all[4].ID, latest.ID)

	_, err = s.store.LatestMovement(ctx, id.ScopeGlobal, id.NewReferenceID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *contractSuite) TestListReferences() {
	ctx := context.Background()
	now := fixtureTime.Add(30 * 24 * time.Hour)
	for i := range 5 {
		s.create(id.ScopeLocal, s.alice, fixtureTime.Add(time.Duration(i)*24*time.Hour))
	}
	bobs := s.create(id.ScopeLocal, s.bob, fixtureTime.Add(10*24*time.Hour))

	s.Run("pages in stable order with a full total", func() {
		sort := query.Sort{Field: query.SortCreatedAt}
		first, total, err := s.store.ListReferences(ctx, query.Build(id.ScopeLocal, query.Filters{}, sort, 1, 4, now))
		s.Require().NoError(err)
		s.Equal(6, total)
		s.Len(first, 4)

		second, _, err := s.store.ListReferences(ctx, query.Build(id.ScopeLocal, query.Filters{}, sort, 2, 4, now))
		s.Require().NoError(err)
		s.Len(second, 2)
		s.Equal(bobs.ID, second[1].ID)
	})

	s.Run("filters on holder", func() {
		spec := query.Build(id.ScopeLocal, query.Filters{MarkedTo: []id.UserID{s.bob.UserID}}, query.Sort{}, 1, 10, now)
		items, total, err := s.store.ListReferences(ctx, spec)
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal(bobs.ID, items[0].ID)
	})

	s.Run("visibility restricts to participants", func() {
		outsider := newUser()
		spec := query.Build(id.ScopeLocal, query.Filters{VisibleTo: &outsider}, query.Sort{}, 1, 10, now)
		items, total, err := s.store.ListReferences(ctx, spec)
		s.Require().NoError(err)
		s.Zero(total)
		s.Empty(items)
	})

	s.Run("matches subject case-insensitively", func() {
		spec := query.Build(id.ScopeLocal, query.Filters{Subject: "SPECTRO"}, query.Sort{}, 1, 10, now)
		_, total, err := s.store.ListReferences(ctx, spec)
		s.Require().NoError(err)
		s.Equal(6, total)
	})
}

func (s *contractSuite) TestDashboard() {
	ctx := context.Background()
	now := fixtureTime.Add(20 * 24 * time.Hour)

	old := s.create(id.ScopeGlobal, s.alice, fixtureTime)
	s.create(id.ScopeGlobal, s.bob, now.Add(-time.Hour))

	closed, mv := handOff(old, s.alice, s.alice, models.StatusClosed, "", now.Add(-time.Minute))
	closedAt := mv.MovementDate
	closed.ClosedAt = &closedAt
	s.Require().NoError(s.store.CommitMovement(ctx, old.UpdatedAt, closed, mv))
	high := s.create(id.ScopeGlobal, s.alice, fixtureTime)
	raised := high.Clone()
	raised.Priority = models.PriorityHigh
	raised.UpdatedAt = models.NextUpdatedAt(high.UpdatedAt, now)
	s.Require().NoError(s.store.UpdateReference(ctx, high.UpdatedAt, raised))

	spec := query.BuildDashboard(id.ScopeGlobal, nil, s.alice.UserID, "Physics", 7, now)
	d, err := s.store.Dashboard(ctx, spec)
	s.Require().NoError(err)

	s.Equal(3, d.TotalCount)
	s.Equal(2, d.OpenCount)
	s.Equal(1, d.ClosedCount)
	s.Equal(1, d.ClosedThisMonth)
	s.Equal(1, d.HighPriorityOpen)
	s.Equal(1, d.PendingOverN)
	s.Equal(1, d.HeldByMe)
	s.Equal(1, d.PendingInMyDivision)
	s.LessOrEqual(d.OpenCount+d.ClosedCount, d.TotalCount)
}

func (s *contractSuite) TestHeldByAndRefresh() {
	ctx := context.Background()
	first := s.create(id.ScopeGlobal, s.alice, fixtureTime)
	second := s.create(id.ScopeGlobal, s.alice, fixtureTime)
	s.create(id.ScopeGlobal, s.bob, fixtureTime)

	var held []*models.Reference
	cursor := HeldByCursor{}
	for {
		page, err := s.store.ListHeldBy(ctx, id.ScopeGlobal, s.alice.UserID, cursor, 1)
		s.Require().NoError(err)
		if len(page) == 0 {
			break
		}
		held = append(held, page...)
		last := page[len(page)-1].ID
		cursor = HeldByCursor{AfterID: &last}
	}
	s.Require().Len(held, 2)
	s.ElementsMatch([]id.ReferenceID{first.ID, second.ID}, []id.ReferenceID{held[0].ID, held[1].ID})

	moved := s.alice
	moved.Division = "Biology"
	refreshed := make([]HolderRefresh, 0, 2)
	for _, ref := range held {
		latest, err := s.store.LatestMovement(ctx, id.ScopeGlobal, ref.ID)
		s.Require().NoError(err)
		next := ref.Clone()
		next.MarkedToDetails = []models.Snapshot{moved}
		next.PendingDivisions, next.PendingLabs = models.PendingUnits(next.MarkedToDetails)
		next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, fixtureTime)
		expected := ref.UpdatedAt
		if ref.ID == second.ID {
			expected = expected.Add(-time.Second)
		}
		refreshed = append(refreshed, HolderRefresh{Reference: next, ExpectedUpdatedAt: expected, LatestMovementID: &latest.ID})
	}

	conflicts, err := s.store.RefreshHolders(ctx, id.ScopeGlobal, refreshed)
	s.Require().NoError(err)
	s.Equal([]id.ReferenceID{second.ID}, conflicts)

	got, err := s.store.GetReference(ctx, id.ScopeGlobal, first.ID)
	s.Require().NoError(err)
	s.Equal("Biology", got.MarkedToDetails[0].Division)
	s.Equal([]string{"Biology"}, got.PendingDivisions)
	s.Equal(s.creator, got.CreatedByDetails)

	latest, err := s.store.LatestMovement(ctx, id.ScopeGlobal, first.ID)
	s.Require().NoError(err)
	s.Equal("Biology", latest.MarkedToDetails[0].Division)

	untouched, err := s.store.GetReference(ctx, id.ScopeGlobal, second.ID)
	s.Require().NoError(err)
	s.Equal("Physics", untouched.MarkedToDetails[0].Division)
}
