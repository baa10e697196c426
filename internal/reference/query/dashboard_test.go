package query

import (
	"time"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
)

func (s *QuerySuite) TestDashboardTally() {
	spec := BuildDashboard(id.ScopeLocal, &s.bob, s.bob, "Finance", 7, s.now)
	closedAt := s.now.Add(-24 * time.Hour)
	lastMonth := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)

	refs := []*models.Reference{
		s.ref(func(r *models.Reference) { r.Priority = models.PriorityHigh }),
		s.ref(func(r *models.Reference) { r.CreatedAt = s.now.Add(-10 * 24 * time.Hour) }),
		s.ref(func(r *models.Reference) { r.Status = models.StatusClosed; r.ClosedAt = &closedAt }),
		s.ref(func(r *models.Reference) { r.Status = models.StatusClosed; r.ClosedAt = &lastMonth }),
		s.ref(func(r *models.Reference) {
			r.Participants = []id.UserID{s.alice}
			r.MarkedTo = []id.UserID{s.alice}
		}),
	}

	var got models.Dashboard
	for _, r := range refs {
		spec.Tally(&got, r)
	}

	s.Equal(4, got.TotalCount, "invisible reference is not counted")
	s.Equal(2, got.OpenCount)
	s.Equal(1, got.HighPriorityOpen)
	s.Equal(1, got.PendingOverN)
	s.Equal(2, got.ClosedCount)
	s.Equal(1, got.ClosedThisMonth)
	s.Equal(2, got.HeldByMe)
	s.Equal(2, got.PendingInMyDivision)
	s.LessOrEqual(got.OpenCount+got.ClosedCount, got.TotalCount)
}

func (s *QuerySuite) TestDashboardSQLSharesVisibilityPredicate() {
	spec := BuildDashboard(id.ScopeGlobal, &s.alice, s.alice, "HR", 7, s.now)
	sql, args := spec.SQL("global_references")

	s.Contains(sql, "FROM global_references WHERE (participants @> ARRAY[$1::uuid] OR created_by = $1::uuid)")
	s.Contains(sql, "created_at <= $2")
	s.Contains(sql, "closed_at >= $3")
	s.Contains(sql, "marked_to @> ARRAY[$4::uuid]")
	s.Contains(sql, "pending_divisions @> ARRAY[$5::text]")
	s.Len(args, 5)
	s.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), args[2])
}
