package models

import (
	"time"

	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   id.UserID
	Role string
}

// Page is one page of a list query.
type Page struct {
	Items []*Reference `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// PageView is a Page whose items carry the read-time fields.
type PageView struct {
	Items []ReferenceView `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// View derives every item's read-time fields as of now.
func (p *Page) View(now time.Time) PageView {
	items := make([]ReferenceView, len(p.Items))
	for i, ref := range p.Items {
		items[i] = ref.View(now)
	}
	return PageView{Items: items, Total: p.Total, Page: p.Page, Limit: p.Limit}
}

// BulkFailure explains why one id in a batch was not applied.
type BulkFailure struct {
	ID      string       `json:"id"`
	Reason  dErrors.Code `json:"reason"`
	Message string       `json:"message"`
}

// BulkResult partitions a batch into applied and rejected ids.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Dashboard holds the rollup counts of one scope as seen by one actor.
type Dashboard struct {
	Scope               id.Scope `json:"scope"`
	OpenCount           int      `json:"open_count"`
	HighPriorityOpen    int      `json:"high_priority_open"`
	PendingOverN        int      `json:"pending_over_n_days"`
	PendingDays         int      `json:"pending_days"`
	ClosedThisMonth     int      `json:"closed_this_month"`
	HeldByMe            int      `json:"held_by_me"`
	PendingInMyDivision int      `json:"pending_in_my_division"`
	ClosedCount         int      `json:"closed_count"`
	TotalCount          int      `json:"total_count"`
}

// ReplayReport compares the ledger fold against the live reference.
type ReplayReport struct {
	ReferenceID id.ReferenceID `json:"reference_id"`
	Replayed    ReplayedState  `json:"replayed"`
	Live        ReplayedState  `json:"live"`
	Consistent  bool           `json:"consistent"`
	Drift       []string       `json:"drift,omitempty"`
}
