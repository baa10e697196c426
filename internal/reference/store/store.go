// Package store persists references and their movement ledgers.
//
// Both implementations keep the two scopes in separate partitions and make
// the movement insert plus the reference update one atomic unit guarded by
// the reference's updated_at token.
package store

import (
	"time"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
)

// MovementCursor resumes a ledger read after the given entry.
type MovementCursor struct {
	Date time.Time
	ID   id.MovementID
}

// After reports whether m sorts strictly after the cursor.
func (c *MovementCursor) After(m *models.Movement) bool {
	if c == nil {
		return true
	}
	if !m.MovementDate.Equal(c.Date) {
		return m.MovementDate.After(c.Date)
	}
	return m.ID.String() > c.ID.String()
}

// HolderRefresh is one reference's refreshed holder snapshots, written only if
// the reference still carries ExpectedUpdatedAt.
type HolderRefresh struct {
	Reference         *models.Reference
	ExpectedUpdatedAt time.Time
	// LatestMovementID, when set, also gets MarkedToDetails rewritten.
	LatestMovementID *id.MovementID
}

// HeldByCursor pages references held by a user in id order.
type HeldByCursor struct {
	AfterID *id.ReferenceID
}

func compareMovements(a, b *models.Movement) int {
	if c := a.MovementDate.Compare(b.MovementDate); c != 0 {
		return c
	}
	switch {
	case a.ID.String() < b.ID.String():
		return -1
	case a.ID.String() > b.ID.String():
		return 1
	}
	return 0
}
