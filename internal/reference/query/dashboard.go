package query

import (
	"fmt"
	"slices"
	"time"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
)

// DashboardSpec describes one grouped conditional aggregation over the
// references visible to Actor.
type DashboardSpec struct {
	Spec
	Actor         id.UserID
	ActorDivision string
	PendingDays   int
	MonthStart    time.Time
}

// BuildDashboard shares List's visibility predicate so counts agree with lists.
func BuildDashboard(scope id.Scope, visibleTo *id.UserID, actor id.UserID, actorDivision string, pendingDays int, now time.Time) DashboardSpec {
	now = now.UTC()
	return DashboardSpec{
		Spec:          Build(scope, Filters{VisibleTo: visibleTo}, Sort{}, 1, 0, now),
		Actor:         actor,
		ActorDivision: actorDivision,
		PendingDays:   pendingDays,
		MonthStart:    time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
}

// SQL renders the single-pass aggregation against table.
func (d DashboardSpec) SQL(table string) (string, []any) {
	where, args := d.Where(1)
	n := len(args) + 1
	args = append(args,
		PendingCutoff(d.Now, d.PendingDays),
		d.MonthStart,
		d.Actor.String(),
		d.ActorDivision,
	)
	query := fmt.Sprintf(`SELECT
	COUNT(*) FILTER (WHERE status <> 'Closed'),
	COUNT(*) FILTER (WHERE status <> 'Closed' AND priority = 'High'),
	COUNT(*) FILTER (WHERE status <> 'Closed' AND created_at <= $%[2]d),
	COUNT(*) FILTER (WHERE status = 'Closed' AND closed_at >= $%[3]d),
	COUNT(*) FILTER (WHERE status <> 'Closed' AND marked_to @> ARRAY[$%[4]d::uuid]),
	COUNT(*) FILTER (WHERE status <> 'Closed' AND $%[5]d::text <> '' AND pending_divisions @> ARRAY[$%[5]d::text]),
	COUNT(*) FILTER (WHERE status = 'Closed'),
	COUNT(*)
FROM %[1]s %[6]s`, table, n, n+1, n+2, n+3, where)
	return query, args
}

// Tally adds ref to the running counts when it passes the visibility predicate.
func (d DashboardSpec) Tally(acc *models.Dashboard, ref *models.Reference) {
	if !d.Matches(ref) {
		return
	}
	acc.TotalCount++
	if ref.Status.IsTerminal() {
		acc.ClosedCount++
		if ref.ClosedAt != nil && !ref.ClosedAt.Before(d.MonthStart) {
			acc.ClosedThisMonth++
		}
		return
	}
	acc.OpenCount++
	if ref.Priority == models.PriorityHigh {
		acc.HighPriorityOpen++
	}
	if !ref.CreatedAt.After(PendingCutoff(d.Now, d.PendingDays)) {
		acc.PendingOverN++
	}
	if ref.IsHeldBy(d.Actor) {
		acc.HeldByMe++
	}
	if d.ActorDivision != "" && slices.Contains(ref.PendingDivisions, d.ActorDivision) {
		acc.PendingInMyDivision++
	}
}
