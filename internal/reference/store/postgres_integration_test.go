//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/tx"
	"refroute/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	contractSuite
	postgres *containers.PostgresContainer
	pg       *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.pg = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"local_movements", "local_references", "global_movements", "global_references")
	s.Require().NoError(err)
	s.store = s.pg
	s.initUsers()
}

// TestJoinsOuterTransaction verifies that a rollback of an outer unit of work
// discards a commit made through the store.
func (s *PostgresStoreSuite) TestJoinsOuterTransaction() {
	ctx := context.Background()
	ref := s.create(id.ScopeLocal, s.alice, fixtureTime)
	next, mv := handOff(ref, s.alice, s.bob, models.StatusInProgress, "", fixtureTime)

	sqlTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.pg.CommitMovement(tx.WithTx(ctx, sqlTx), ref.UpdatedAt, next, mv))
	s.Require().NoError(sqlTx.Rollback())

	got, err := s.pg.GetReference(ctx, id.ScopeLocal, ref.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, got.Status)
}

func (s *PostgresStoreSuite) TestReopenRequestRoundTrip() {
	ctx := context.Background()
	ref := s.create(id.ScopeGlobal, s.alice, fixtureTime)

	pending := ref.Clone()
	pending.ReopenRequest = &models.ReopenRequest{
		RequestedBy:        s.bob.UserID,
		RequestedByDetails: s.bob,
		Reason:             "new evidence",
		RequestedAt:        fixtureTime,
	}
	pending.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, fixtureTime)
	s.Require().NoError(s.pg.UpdateReference(ctx, ref.UpdatedAt, pending))

	got, err := s.pg.GetReference(ctx, id.ScopeGlobal, ref.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ReopenRequest)
	s.Equal(*pending.ReopenRequest, *got.ReopenRequest)
}
