// Package query translates declarative list filters into a QuerySpec that both
// stores execute: PostgreSQL renders it to SQL, the memory store evaluates it
// with Matches and Less.
package query

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	pstrings "refroute/pkg/platform/strings"
)

// SortField is a whitelisted sort key.
type SortField string

const (
	SortCreatedAt        SortField = "createdAt"
	SortUpdatedAt        SortField = "updatedAt"
	SortPriority         SortField = "priority"
	SortStatus           SortField = "status"
	SortSubject          SortField = "subject"
	SortRefID            SortField = "refId"
	SortDaysSinceCreated SortField = "daysSinceCreated"
)

var sortColumns = map[SortField]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortPriority:  "CASE priority WHEN 'Low' THEN 1 WHEN 'Medium' THEN 2 WHEN 'High' THEN 3 ELSE 0 END",
	SortStatus:    "status",
	SortSubject:   "lower(subject)",
	SortRefID:     "ref_id",
	// Older references have more days; ordering by days ascending is created_at descending.
	SortDaysSinceCreated: "created_at",
}

// Filters are combined with AND across keys and OR within a key.
type Filters struct {
	Statuses    []models.Status
	Priorities  []models.Priority
	MarkedTo    []id.UserID
	CreatedBy   []id.UserID
	Divisions   []string
	Subject     string
	PendingDays *int
	// VisibleTo restricts results to references the user participates in.
	// Nil means unrestricted (view_all).
	VisibleTo *id.UserID
}

// Sort orders results; ties always break on id ascending.
type Sort struct {
	Field SortField
	Desc  bool
}

// Limits bound pagination.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

// Spec is the fully resolved, store-independent query.
type Spec struct {
	Scope   id.Scope
	Filters Filters
	Sort    Sort
	Page    int
	Limit   int
	Now     time.Time
}

// Build assembles a Spec. It is pure: now is passed in, nothing is read.
func Build(scope id.Scope, filters Filters, sort Sort, page, limit int, now time.Time) Spec {
	if page < 1 {
		page = 1
	}
	if sort.Field == "" {
		sort = Sort{Field: SortCreatedAt, Desc: true}
	}
	return Spec{Scope: scope, Filters: filters, Sort: sort, Page: page, Limit: limit, Now: now.UTC()}
}

// FromListRequest parses raw list parameters into Filters, Sort and paging.
func FromListRequest(req models.ListRequest, limits Limits) (Filters, Sort, int, int, error) {
	var f Filters
	for _, raw := range pstrings.DedupeAndTrim(req.Status) {
		s, err := models.ParseStatus(raw)
		if err != nil {
			return Filters{}, Sort{}, 0, 0, err
		}
		f.Statuses = append(f.Statuses, s)
	}
	for _, raw := range pstrings.DedupeAndTrim(req.Priority) {
		p, err := models.ParsePriority(raw)
		if err != nil {
			return Filters{}, Sort{}, 0, 0, err
		}
		f.Priorities = append(f.Priorities, p)
	}
	var err error
	if f.MarkedTo, err = id.ParseUserIDs(pstrings.DedupeAndTrimLower(req.MarkedTo)); err != nil {
		return Filters{}, Sort{}, 0, 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid markedTo filter")
	}
	if f.CreatedBy, err = id.ParseUserIDs(pstrings.DedupeAndTrimLower(req.CreatedBy)); err != nil {
		return Filters{}, Sort{}, 0, 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid createdBy filter")
	}
	f.Divisions = pstrings.DedupeAndTrim(req.Division)
	f.Subject = strings.TrimSpace(req.Subject)
	if len(f.Subject) > models.MaxSubjectLength {
		return Filters{}, Sort{}, 0, 0, dErrors.New(dErrors.CodeValidation, "subject filter is too long")
	}
	if req.PendingDays != nil {
		if *req.PendingDays < 0 {
			return Filters{}, Sort{}, 0, 0, dErrors.New(dErrors.CodeValidation, "pendingDays must not be negative")
		}
		n := *req.PendingDays
		f.PendingDays = &n
	}

	sort := Sort{Field: SortCreatedAt, Desc: true}
	if req.SortBy != "" {
		field := SortField(req.SortBy)
		if _, ok := sortColumns[field]; !ok {
			return Filters{}, Sort{}, 0, 0, dErrors.New(dErrors.CodeValidation, "unsupported sort field: "+req.SortBy)
		}
		sort.Field = field
	}
	switch strings.ToLower(req.SortOrder) {
	case "", "desc":
		sort.Desc = true
	case "asc":
		sort.Desc = false
	default:
		return Filters{}, Sort{}, 0, 0, dErrors.New(dErrors.CodeValidation, "sortOrder must be asc or desc")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = limits.DefaultLimit
	}
	if limits.MaxLimit > 0 && limit > limits.MaxLimit {
		limit = limits.MaxLimit
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	return f, sort, page, limit, nil
}

// Offset of the first row of the page.
func (s Spec) Offset() int {
	if s.Limit <= 0 {
		return 0
	}
	return (s.Page - 1) * s.Limit
}

// PendingCutoff is the latest createdAt that counts as pending for n days.
func PendingCutoff(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// Where renders the filter predicate. startArg is the first $-placeholder number.
func (s Spec) Where(startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg
	next := func() int {
		n := argNum
		argNum++
		return n
	}
	f := s.Filters

	if f.VisibleTo != nil {
		n := next()
		conditions = append(conditions, fmt.Sprintf("(participants @> ARRAY[$%d::uuid] OR created_by = $%d::uuid)", n, n))
		args = append(args, f.VisibleTo.String())
	}
	if len(f.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d::text[])", next()))
		args = append(args, pq.Array(statusStrings(f.Statuses)))
	}
	if len(f.Priorities) > 0 {
		conditions = append(conditions, fmt.Sprintf("priority = ANY($%d::text[])", next()))
		args = append(args, pq.Array(priorityStrings(f.Priorities)))
	}
	if len(f.MarkedTo) > 0 {
		conditions = append(conditions, fmt.Sprintf("marked_to && $%d::uuid[]", next()))
		args = append(args, pq.Array(id.UserIDStrings(f.MarkedTo)))
	}
	if len(f.CreatedBy) > 0 {
		conditions = append(conditions, fmt.Sprintf("created_by = ANY($%d::uuid[])", next()))
		args = append(args, pq.Array(id.UserIDStrings(f.CreatedBy)))
	}
	if len(f.Divisions) > 0 {
		conditions = append(conditions, fmt.Sprintf("pending_divisions && $%d::text[]", next()))
		args = append(args, pq.Array(f.Divisions))
	}
	if f.Subject != "" {
		n := next()
		conditions = append(conditions, fmt.Sprintf("(subject ILIKE $%d OR ref_id ILIKE $%d)", n, n))
		args = append(args, "%"+escapeLike(f.Subject)+"%")
	}
	if f.PendingDays != nil {
		conditions = append(conditions, fmt.Sprintf("(created_at <= $%d AND status <> 'Closed')", next()))
		args = append(args, PendingCutoff(s.Now, *f.PendingDays))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// OrderBy renders a whitelisted ORDER BY with an id tiebreak.
func (s Spec) OrderBy() string {
	column, ok := sortColumns[s.Sort.Field]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	desc := s.Sort.Desc
	if s.Sort.Field == SortDaysSinceCreated {
		desc = !desc
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", column, direction)
}

// Matches evaluates the filter predicate in memory.
func (s Spec) Matches(ref *models.Reference) bool {
	f := s.Filters
	if f.VisibleTo != nil && !ref.IsParticipant(*f.VisibleTo) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, ref.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, ref.Priority) {
		return false
	}
	if len(f.MarkedTo) > 0 && !slices.ContainsFunc(ref.MarkedTo, func(u id.UserID) bool { return slices.Contains(f.MarkedTo, u) }) {
		return false
	}
	if len(f.CreatedBy) > 0 && !slices.Contains(f.CreatedBy, ref.CreatedBy) {
		return false
	}
	if len(f.Divisions) > 0 && !slices.ContainsFunc(ref.PendingDivisions, func(d string) bool { return slices.Contains(f.Divisions, d) }) {
		return false
	}
	if f.Subject != "" {
		needle := strings.ToLower(f.Subject)
		if !strings.Contains(strings.ToLower(ref.Subject), needle) && !strings.Contains(strings.ToLower(ref.RefID), needle) {
			return false
		}
	}
	if f.PendingDays != nil {
		if ref.Status.IsTerminal() || ref.CreatedAt.After(PendingCutoff(s.Now, *f.PendingDays)) {
			return false
		}
	}
	return true
}

// Compare orders two references the way OrderBy does.
func (s Spec) Compare(a, b *models.Reference) int {
	c := compareField(s.Sort.Field, a, b)
	desc := s.Sort.Desc
	if s.Sort.Field == SortDaysSinceCreated {
		desc = !desc
	}
	if desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

func compareField(field SortField, a, b *models.Reference) int {
	switch field {
	case SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortPriority:
		return priorityRank(a.Priority) - priorityRank(b.Priority)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortSubject:
		return strings.Compare(strings.ToLower(a.Subject), strings.ToLower(b.Subject))
	case SortRefID:
		return strings.Compare(a.RefID, b.RefID)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityLow:
		return 1
	case models.PriorityMedium:
		return 2
	case models.PriorityHigh:
		return 3
	}
	return 0
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(in []models.Priority) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = string(p)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
