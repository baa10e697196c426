package models

import (
	"time"

	id "refroute/pkg/domain"
)

// Movement is an immutable ledger entry recording one hand-off.
type Movement struct {
	ID                 id.MovementID  `json:"id"`
	ReferenceID        id.ReferenceID `json:"reference_id"`
	PerformedBy        id.UserID      `json:"performed_by"`
	PerformedByDetails Snapshot       `json:"performed_by_details"`
	MarkedTo           []id.UserID    `json:"marked_to"`
	MarkedToDetails    []Snapshot     `json:"marked_to_details"`
	PendingDivisions   []string       `json:"pending_divisions"`
	StatusOnMovement   Status         `json:"status_on_movement"`
	Action             MovementAction `json:"action"`
	Remarks            string         `json:"remarks"`
	IdempotencyKey     string         `json:"idempotency_key,omitempty"`
	MovementDate       time.Time      `json:"movement_date"`
}

// ReplayedState is what the ledger says the live reference should look like.
type ReplayedState struct {
	Status           Status      `json:"status"`
	MarkedTo         []id.UserID `json:"marked_to"`
	PendingDivisions []string    `json:"pending_divisions"`
	Movements        int         `json:"movements"`
}
