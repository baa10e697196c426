package service

import (
	"context"
	"iter"
	"slices"

	"refroute/internal/permission"
	"refroute/internal/reference/models"
	"refroute/internal/reference/store"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
)

// ledgerPageSize is the number of movements fetched per store round trip.
const ledgerPageSize = 100

// Movements lazily yields the ledger of a reference in movement order. The
// sequence pages through the store and can be ranged over again to restart.
func (s *Service) Movements(ctx context.Context, scope id.Scope, refID id.ReferenceID) iter.Seq2[*models.Movement, error] {
	return func(yield func(*models.Movement, error) bool) {
		var cursor *store.MovementCursor
		for {
			sctx, cancel := s.storeCtx(ctx)
			page, err := s.store.ListMovements(sctx, scope, refID, cursor, ledgerPageSize)
			cancel()
			if err != nil {
				yield(nil, s.translate(err, "list movements"))
				return
			}
			for _, mv := range page {
				if !yield(mv, nil) {
					return
				}
			}
			if len(page) < ledgerPageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &store.MovementCursor{Date: last.MovementDate, ID: last.ID}
		}
	}
}

// ListMovements returns the full ledger of a reference visible to actor.
func (s *Service) ListMovements(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (_ []*models.Movement, err error) {
	ctx, span := s.startSpan(ctx, "list_movements", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.Get(ctx, actor, scope, refID); err != nil {
		return nil, err
	}
	out := make([]*models.Movement, 0)
	for mv, err := range s.Movements(ctx, scope, refID) {
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

// ReplayState folds the ledger and compares the result with the live reference.
func (s *Service) ReplayState(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (_ *models.ReplayReport, err error) {
	ctx, span := s.startSpan(ctx, "replay", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(actor, scope, permission.ActionReplay); err != nil {
		return nil, err
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	report, _, err := s.replay(ctx, ref)
	return report, err
}

// replay returns the report and the latest movement.
func (s *Service) replay(ctx context.Context, ref *models.Reference) (*models.ReplayReport, *models.Movement, error) {
	var (
		folded models.ReplayedState
		latest *models.Movement
	)
	for mv, err := range s.Movements(ctx, ref.Scope, ref.ID) {
		if err != nil {
			return nil, nil, err
		}
		folded.Status = mv.StatusOnMovement
		folded.MarkedTo = slices.Clone(mv.MarkedTo)
		folded.PendingDivisions = slices.Clone(mv.PendingDivisions)
		folded.Movements++
		latest = mv
	}
	if latest == nil {
		return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "reference "+ref.RefID+" has an empty ledger")
	}
	live := models.ReplayedState{
		Status:           ref.Status,
		MarkedTo:         slices.Clone(ref.MarkedTo),
		PendingDivisions: slices.Clone(ref.PendingDivisions),
		Movements:        folded.Movements,
	}
	report := &models.ReplayReport{ReferenceID: ref.ID, Replayed: folded, Live: live}
	if folded.Status != live.Status {
		report.Drift = append(report.Drift, "status")
	}
	if !slices.Equal(folded.MarkedTo, live.MarkedTo) {
		report.Drift = append(report.Drift, "marked_to")
	}
	if !slices.Equal(folded.PendingDivisions, live.PendingDivisions) {
		report.Drift = append(report.Drift, "pending_divisions")
	}
	report.Consistent = len(report.Drift) == 0
	return report, latest, nil
}

// Repair rewrites the live routing fields of a drifted reference from its
// ledger. A consistent reference is left untouched.
func (s *Service) Repair(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (_ *models.ReplayReport, err error) {
	ctx, span := s.startSpan(ctx, "repair", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(actor, scope, permission.ActionRepair); err != nil {
		return nil, err
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	report, latest, err := s.replay(ctx, ref)
	if err != nil || report.Consistent {
		return report, err
	}

	next := ref.Clone()
	next.Status = report.Replayed.Status
	next.MarkedTo = slices.Clone(latest.MarkedTo)
	next.MarkedToDetails = slices.Clone(latest.MarkedToDetails)
	next.PendingDivisions = slices.Clone(latest.PendingDivisions)
	_, next.PendingLabs = models.PendingUnits(latest.MarkedToDetails)
	next.Participants = models.MergeParticipants(ref.Participants, latest.MarkedTo...)
	if next.Status.IsTerminal() {
		if next.ClosedAt == nil {
			closedAt := latest.MovementDate
			next.ClosedAt = &closedAt
		}
	} else {
		next.ClosedAt = nil
	}
	next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, s.now())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateReference(sctx, ref.UpdatedAt, next); err != nil {
		return nil, s.translate(err, "repair reference")
	}
	s.logger.WarnContext(ctx, "reference repaired from ledger",
		"reference_id", ref.ID.String(),
		"drift", report.Drift,
	)
	repaired := *report
	repaired.Live = report.Replayed
	repaired.Consistent = true
	return &repaired, nil
}
