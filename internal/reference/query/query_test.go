package query

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
)

type QuerySuite struct {
	suite.Suite
	now   time.Time
	alice id.UserID
	bob   id.UserID
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

func (s *QuerySuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.alice = id.UserID(uuid.New())
	s.bob = id.UserID(uuid.New())
}

func (s *QuerySuite) ref(mutators ...func(*models.Reference)) *models.Reference {
	r := &models.Reference{
		ID:               id.NewReferenceID(),
		RefID:            "REF/LOC/2026/ABCDEF01",
		Scope:            id.ScopeLocal,
		Subject:          "Budget proposal",
		Status:           models.StatusOpen,
		Priority:         models.PriorityMedium,
		CreatedBy:        s.alice,
		MarkedTo:         []id.UserID{s.bob},
		Participants:     []id.UserID{s.alice, s.bob},
		PendingDivisions: []string{"Finance"},
		CreatedAt:        s.now.Add(-48 * time.Hour),
	}
	for _, m := range mutators {
		m(r)
	}
	return r
}

func (s *QuerySuite) TestFromListRequest() {
	limits := Limits{DefaultLimit: 20, MaxLimit: 100}

	s.Run("defaults", func() {
		f, sort, page, limit, err := FromListRequest(models.ListRequest{}, limits)
		s.Require().NoError(err)
		s.Empty(f.Statuses)
		s.Empty(f.MarkedTo)
		s.Nil(f.PendingDays)
		s.Equal(Sort{Field: SortCreatedAt, Desc: true}, sort)
		s.Equal(1, page)
		s.Equal(20, limit)
	})

	s.Run("limit is capped", func() {
		_, _, _, limit, err := FromListRequest(models.ListRequest{Limit: 1000}, limits)
		s.Require().NoError(err)
		s.Equal(100, limit)
	})

	s.Run("statuses parsed case-insensitively and deduplicated", func() {
		f, _, _, _, err := FromListRequest(models.ListRequest{Status: []string{"open", "Open", "closed"}}, limits)
		s.Require().NoError(err)
		s.Equal([]models.Status{models.StatusOpen, models.StatusClosed}, f.Statuses)
	})

	s.Run("unknown status rejected", func() {
		_, _, _, _, err := FromListRequest(models.ListRequest{Status: []string{"Archived"}}, limits)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown sort field rejected", func() {
		_, _, _, _, err := FromListRequest(models.ListRequest{SortBy: "password"}, limits)
		s.Require().Error(err)
	})

	s.Run("bad holder id rejected", func() {
		_, _, _, _, err := FromListRequest(models.ListRequest{MarkedTo: []string{"nope"}}, limits)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("negative pendingDays rejected", func() {
		n := -1
		_, _, _, _, err := FromListRequest(models.ListRequest{PendingDays: &n}, limits)
		s.Require().Error(err)
	})
}

func (s *QuerySuite) TestWhere() {
	s.Run("no filters renders nothing", func() {
		where, args := Build(id.ScopeLocal, Filters{}, Sort{}, 1, 20, s.now).Where(1)
		s.Empty(where)
		s.Empty(args)
	})

	s.Run("keys are ANDed with sequential placeholders", func() {
		days := 7
		spec := Build(id.ScopeGlobal, Filters{
			Statuses:    []models.Status{models.StatusOpen, models.StatusInProgress},
			MarkedTo:    []id.UserID{s.bob},
			Subject:     "50%_off",
			PendingDays: &days,
			VisibleTo:   &s.alice,
		}, Sort{}, 1, 20, s.now)

		where, args := spec.Where(1)
		s.Equal("WHERE (participants @> ARRAY[$1::uuid] OR created_by = $1::uuid) AND status = ANY($2::text[]) AND marked_to && $3::uuid[] AND (subject ILIKE $4 OR ref_id ILIKE $4) AND (created_at <= $5 AND status <> 'Closed')", where)
		s.Len(args, 5)
		s.Equal(`%50\%\_off%`, args[3])
		s.Equal(s.now.Add(-7*24*time.Hour), args[4])
	})

	s.Run("start argument offsets placeholders", func() {
		where, _ := Build(id.ScopeLocal, Filters{Divisions: []string{"HR"}}, Sort{}, 1, 20, s.now).Where(3)
		s.Equal("WHERE pending_divisions && $3::text[]", where)
	})
}

func (s *QuerySuite) TestOrderBy() {
	s.Equal("ORDER BY created_at DESC, id ASC", Build(id.ScopeLocal, Filters{}, Sort{}, 1, 20, s.now).OrderBy())
	s.Equal("ORDER BY created_at DESC, id ASC",
		Build(id.ScopeLocal, Filters{}, Sort{Field: SortDaysSinceCreated, Desc: false}, 1, 20, s.now).OrderBy())
	s.Contains(Build(id.ScopeLocal, Filters{}, Sort{Field: SortPriority, Desc: true}, 1, 20, s.now).OrderBy(), "CASE priority")
}

func (s *QuerySuite) TestMatches() {
	days := 1

	cases := []struct {
		name    string
		filters Filters
		ref     *models.Reference
		want    bool
	}{
		{"empty filters match", Filters{}, s.ref(), true},
		{"status OR within key", Filters{Statuses: []models.Status{models.StatusClosed, models.StatusOpen}}, s.ref(), true},
		{"status mismatch", Filters{Statuses: []models.Status{models.StatusClosed}}, s.ref(), false},
		{"holder match", Filters{MarkedTo: []id.UserID{s.bob}}, s.ref(), true},
		{"holder mismatch", Filters{MarkedTo: []id.UserID{s.alice}}, s.ref(), false},
		{"creator match", Filters{CreatedBy: []id.UserID{s.alice}}, s.ref(), true},
		{"division match", Filters{Divisions: []string{"HR", "Finance"}}, s.ref(), true},
		{"subject case-insensitive", Filters{Subject: "BUDGET"}, s.ref(), true},
		{"subject matches ref id", Filters{Subject: "abcdef"}, s.ref(), true},
		{"pending days", Filters{PendingDays: &days}, s.ref(), true},
		{"pending excludes closed", Filters{PendingDays: &days}, s.ref(func(r *models.Reference) { r.Status = models.StatusClosed }), false},
		{"pending excludes recent", Filters{PendingDays: &days}, s.ref(func(r *models.Reference) { r.CreatedAt = s.now }), false},
		{"visibility excludes outsiders", Filters{VisibleTo: ptr(id.UserID(uuid.New()))}, s.ref(), false},
		{"AND across keys", Filters{MarkedTo: []id.UserID{s.bob}, Statuses: []models.Status{models.StatusClosed}}, s.ref(), false},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			spec := Build(id.ScopeLocal, tc.filters, Sort{}, 1, 20, s.now)
			s.Equal(tc.want, spec.Matches(tc.ref))
		})
	}
}

func (s *QuerySuite) TestCompareIsStable() {
	a := s.ref(func(r *models.Reference) { r.Priority = models.PriorityHigh })
	b := s.ref(func(r *models.Reference) { r.Priority = models.PriorityLow })
	c := s.ref(func(r *models.Reference) { r.Priority = models.PriorityHigh })

	spec := Build(id.ScopeLocal, Filters{}, Sort{Field: SortPriority, Desc: true}, 1, 20, s.now)
	refs := []*models.Reference{b, c, a}
	slices.SortFunc(refs, spec.Compare)

	s.Equal(models.PriorityLow, refs[2].Priority)
	s.Less(refs[0].ID.String(), refs[1].ID.String(), "equal priorities break ties on id")
}

func ptr[T any](v T) *T { return &v }
