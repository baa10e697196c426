package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"refroute/internal/identity"
	id "refroute/pkg/domain"
)

// Snapshot is a point-in-time copy of a user's display identity embedded in
// references and movements. Display only; never used for authorization.
type Snapshot struct {
	UserID      id.UserID `json:"user_id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	LabName     string    `json:"lab_name"`
	Division    string    `json:"division"`
	Designation string    `json:"designation"`
}

// SnapshotOf copies the display fields of a directory identity.
func SnapshotOf(u identity.Identity) Snapshot {
	return Snapshot{
		UserID:      u.UserID,
		FullName:    u.FullName,
		Email:       u.Email,
		LabName:     u.LabName,
		Division:    u.Division,
		Designation: u.Designation,
	}
}

// SameDisplay compares the refreshable fields. Email and id are stable keys.
func (s Snapshot) SameDisplay(o Snapshot) bool {
	return s.FullName == o.FullName &&
		s.LabName == o.LabName &&
		s.Division == o.Division &&
		s.Designation == o.Designation
}

// Delivery records how the physical correspondence was sent, if at all.
type Delivery struct {
	Mode   string     `json:"mode,omitempty"`
	Detail string     `json:"detail,omitempty"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// ReopenRequest is present only while a reopen is pending on a Closed reference.
type ReopenRequest struct {
	RequestedBy        id.UserID `json:"requested_by"`
	RequestedByDetails Snapshot  `json:"requested_by_details"`
	Reason             string    `json:"reason"`
	RequestedAt        time.Time `json:"requested_at"`
}

// Reference is a routable document. MarkedTo is always a list; the scope decides
// whether more than one holder is allowed.
type Reference struct {
	ID             id.ReferenceID `json:"id"`
	RefID          string         `json:"ref_id"`
	Scope          id.Scope       `json:"scope"`
	Subject        string         `json:"subject"`
	Remarks        string         `json:"remarks"`
	ExternalNumber string         `json:"external_number,omitempty"`
	Delivery       Delivery       `json:"delivery"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	CreatedBy        id.UserID   `json:"created_by"`
	CreatedByDetails Snapshot    `json:"created_by_details"`
	MarkedTo         []id.UserID `json:"marked_to"`
	MarkedToDetails  []Snapshot  `json:"marked_to_details"`
	Participants     []id.UserID `json:"participants"`

	PendingDivisions []string `json:"pending_divisions"`
	PendingLabs      []string `json:"pending_labs"`

	ReopenRequest *ReopenRequest `json:"reopen_request,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// IsHeldBy reports whether user is a current holder.
func (r *Reference) IsHeldBy(user id.UserID) bool {
	return slices.Contains(r.MarkedTo, user)
}

// IsParticipant reports whether user was ever involved with the reference.
func (r *Reference) IsParticipant(user id.UserID) bool {
	return slices.Contains(r.Participants, user) || r.CreatedBy == user
}

// MarkedToDivision is the division of the first current holder.
func (r *Reference) MarkedToDivision() string {
	if len(r.PendingDivisions) == 0 {
		return ""
	}
	return r.PendingDivisions[0]
}

// DaysSinceCreated is computed, never stored.
func (r *Reference) DaysSinceCreated(now time.Time) int {
	if now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// ReferenceView is a Reference as served by the API, with the fields derived
// at read time.
type ReferenceView struct {
	*Reference
	MarkedToDivision string `json:"marked_to_division"`
	DaysSinceCreated int    `json:"days_since_created"`
}

// View derives the read-time fields as of now.
func (r *Reference) View(now time.Time) ReferenceView {
	return ReferenceView{Reference: r, MarkedToDivision: r.MarkedToDivision(), DaysSinceCreated: r.DaysSinceCreated(now)}
}

// Clone returns a deep copy so stores never hand out shared slices.
func (r *Reference) Clone() *Reference {
	if r == nil {
		return nil
	}
	c := *r
	c.MarkedTo = slices.Clone(r.MarkedTo)
	c.MarkedToDetails = slices.Clone(r.MarkedToDetails)
	c.Participants = slices.Clone(r.Participants)
	c.PendingDivisions = slices.Clone(r.PendingDivisions)
	c.PendingLabs = slices.Clone(r.PendingLabs)
	if r.ReopenRequest != nil {
		rr := *r.ReopenRequest
		c.ReopenRequest = &rr
	}
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		c.ClosedAt = &t
	}
	if r.Delivery.SentAt != nil {
		t := *r.Delivery.SentAt
		c.Delivery.SentAt = &t
	}
	return &c
}

// CheckHolderInvariants verifies the holder/participant/detail relationships.
func (r *Reference) CheckHolderInvariants() error {
	if len(r.MarkedTo) == 0 {
		return fmt.Errorf("reference %s has no holder", r.ID)
	}
	if len(r.MarkedTo) != len(r.MarkedToDetails) {
		return fmt.Errorf("reference %s has %d holders but %d holder details", r.ID, len(r.MarkedTo), len(r.MarkedToDetails))
	}
	for i, h := range r.MarkedTo {
		if !slices.Contains(r.Participants, h) {
			return fmt.Errorf("holder %s of reference %s is not a participant", h, r.ID)
		}
		if r.MarkedToDetails[i].UserID != h {
			return fmt.Errorf("holder detail %d of reference %s does not match holder", i, r.ID)
		}
	}
	if !r.Scope.AllowsMultipleHolders() && len(r.MarkedTo) > 1 {
		return fmt.Errorf("local reference %s has %d holders", r.ID, len(r.MarkedTo))
	}
	return nil
}

// NextUpdatedAt returns a concurrency token strictly greater than prev.
// Tokens have microsecond precision so they survive a PostgreSQL round trip.
func NextUpdatedAt(prev, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	floor := prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if next.Before(floor) {
		return floor
	}
	return next
}

// PendingUnits returns the ordered, distinct, non-empty divisions and labs of holders.
func PendingUnits(holders []Snapshot) (divisions, labs []string) {
	divisions = make([]string, 0, len(holders))
	labs = make([]string, 0, len(holders))
	for _, h := range holders {
		if h.Division != "" && !slices.Contains(divisions, h.Division) {
			divisions = append(divisions, h.Division)
		}
		if h.LabName != "" && !slices.Contains(labs, h.LabName) {
			labs = append(labs, h.LabName)
		}
	}
	return divisions, labs
}

// MergeParticipants appends users not already present. The result never shrinks.
func MergeParticipants(existing []id.UserID, add ...id.UserID) []id.UserID {
	out := slices.Clone(existing)
	for _, u := range add {
		if !slices.Contains(out, u) {
			out = append(out, u)
		}
	}
	return out
}

// GenerateRefID builds the immutable human-readable code REF/<LOC|GLB>/<yyyy>/<8 hex>.
func GenerateRefID(scope id.Scope, createdAt time.Time, refID id.ReferenceID) string {
	hex := strings.ReplaceAll(refID.String(), "-", "")
	return fmt.Sprintf("REF/%s/%04d/%s", scope.Code(), createdAt.UTC().Year(), strings.ToUpper(hex[:8]))
}
