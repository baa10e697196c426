package store

import (
	"time"

	"github.com/google/uuid"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
)

var fixtureTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func snapshot(user id.UserID, name, lab, division string) models.Snapshot {
	return models.Snapshot{
		UserID:      user,
		FullName:    name,
		Email:       name + "@example.org",
		LabName:     lab,
		Division:    division,
		Designation: "Scientist",
	}
}

func newUser() id.UserID { return id.UserID(uuid.New()) }

// newFixture builds an Open reference created by creator and held by holder,
// together with its seed movement.
func newFixture(scope id.Scope, creator, holder models.Snapshot, createdAt time.Time) (*models.Reference, *models.Movement) {
	refID := id.NewReferenceID()
	divisions, labs := models.PendingUnits([]models.Snapshot{holder})
	ref := &models.Reference{
		ID:               refID,
		RefID:            models.GenerateRefID(scope, createdAt, refID),
		Scope:            scope,
		Subject:          "Procurement of spectrometer",
		Status:           models.StatusOpen,
		Priority:         models.PriorityMedium,
		CreatedBy:        creator.UserID,
		CreatedByDetails: creator,
		MarkedTo:         []id.UserID{holder.UserID},
		MarkedToDetails:  []models.Snapshot{holder},
		Participants:     models.MergeParticipants(nil, creator.UserID, holder.UserID),
		PendingDivisions: divisions,
		PendingLabs:      labs,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
	seed := &models.Movement{
		ID:                 id.NewMovementID(),
		ReferenceID:        refID,
		PerformedBy:        creator.UserID,
		PerformedByDetails: creator,
		MarkedTo:           []id.UserID{holder.UserID},
		MarkedToDetails:    []models.Snapshot{holder},
		PendingDivisions:   divisions,
		StatusOnMovement:   models.StatusOpen,
		Action:             models.ActionCreated,
		MovementDate:       createdAt,
	}
	return ref, seed
}

// handOff returns the reference and movement of a forward from ref's holder to next.
func handOff(ref *models.Reference, performer models.Snapshot, next models.Snapshot, status models.Status, key string, at time.Time) (*models.Reference, *models.Movement) {
	updated := ref.Clone()
	divisions, labs := models.PendingUnits([]models.Snapshot{next})
	updated.Status = status
	updated.MarkedTo = []id.UserID{next.UserID}
	updated.MarkedToDetails = []models.Snapshot{next}
	updated.Participants = models.MergeParticipants(ref.Participants, next.UserID)
	updated.PendingDivisions = divisions
	updated.PendingLabs = labs
	updated.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, at)
	mv := &models.Movement{
		ID:                 id.NewMovementID(),
		ReferenceID:        ref.ID,
		PerformedBy:        performer.UserID,
		PerformedByDetails: performer,
		MarkedTo:           updated.MarkedTo,
		MarkedToDetails:    updated.MarkedToDetails,
		PendingDivisions:   divisions,
		StatusOnMovement:   status,
		Action:             models.ActionFor(status),
		IdempotencyKey:     key,
		MovementDate:       updated.UpdatedAt,
	}
	return updated, mv
}
