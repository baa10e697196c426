package service

import (
	"context"
	"errors"
	"time"

	"refroute/internal/notify"
	"refroute/internal/permission"
	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/sentinel"
)

// refIDAttempts bounds regeneration of a colliding human-readable code.
const refIDAttempts = 3

// Create opens a reference held by the request's holders, together with its
// seed movement.
func (s *Service) Create(ctx context.Context, actor models.Actor, scope id.Scope, req *models.CreateReferenceRequest) (_ *models.Reference, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "create", scope)
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveOperation("create", start)
	}()

	if _, err := s.authorize(actor, scope, permission.ActionCreate); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	holders, err := req.Holders()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid holder id")
	}
	creator, err := s.snapshot(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	holderSnaps, err := s.resolveHolders(ctx, scope, creator, holders)
	if err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if req.Priority != "" {
		priority = models.Priority(req.Priority)
	}
	now := s.now()
	markedTo := userIDs(holderSnaps)
	divisions, labs := models.PendingUnits(holderSnaps)
	ref := &models.Reference{
		Scope:            scope,
		Subject:          req.Subject,
		Remarks:          req.Remarks,
		ExternalNumber:   req.ExternalNumber,
		Delivery:         models.Delivery{Mode: req.DeliveryMode, Detail: req.DeliveryDetail, SentAt: req.DeliverySentAt},
		Status:           models.StatusOpen,
		Priority:         priority,
		CreatedBy:        actor.ID,
		CreatedByDetails: creator,
		MarkedTo:         markedTo,
		MarkedToDetails:  holderSnaps,
		Participants:     models.MergeParticipants([]id.UserID{actor.ID}, markedTo...),
		PendingDivisions: divisions,
		PendingLabs:      labs,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	seed := &models.Movement{
		ID:                 id.NewMovementID(),
		PerformedBy:        actor.ID,
		PerformedByDetails: creator,
		MarkedTo:           markedTo,
		MarkedToDetails:    holderSnaps,
		PendingDivisions:   divisions,
		StatusOnMovement:   models.StatusOpen,
		Action:             models.ActionCreated,
		Remarks:            req.Remarks,
		MovementDate:       now,
	}

	for attempt := 1; ; attempt++ {
		ref.ID = id.NewReferenceID()
		ref.RefID = models.GenerateRefID(scope, now, ref.ID)
		seed.ReferenceID = ref.ID
		sctx, cancel := s.storeCtx(ctx)
		err = s.store.CreateReference(sctx, ref, seed)
		cancel()
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) || attempt == refIDAttempts {
			return nil, s.translate(err, "create reference")
		}
		s.logger.WarnContext(ctx, "reference code collision, regenerating", "ref_id", ref.RefID, "attempt", attempt)
	}

	s.metrics.IncrementMovement(string(scope), string(models.ActionCreated))
	s.logger.InfoContext(ctx, "reference created",
		"reference_id", ref.ID.String(),
		"ref_id", ref.RefID,
		"scope", scope,
		"actor", actor.ID.String(),
	)
	s.emit(ctx, movedEvent(ref, actor.ID, ref.Remarks))
	return ref, nil
}

// Get returns a reference visible to actor. Invisible references are reported
// as not found.
func (s *Service) Get(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (_ *models.Reference, err error) {
	ctx, span := s.startSpan(ctx, "get", scope)
	defer func() { endSpan(span, err) }()

	grant, err := s.authorize(actor, scope, permission.ActionView)
	if err != nil {
		return nil, err
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	if !visible(actor, grant, ref) {
		return nil, dErrors.New(dErrors.CodeNotFound, "load reference: not found")
	}
	return ref, nil
}

// handOff describes one ledger-producing change.
type handOff struct {
	holders []models.Snapshot
	status  models.Status
	action  models.MovementAction
	remarks string
	key     string
	// mutate applies non-routing changes carried by the same write.
	mutate func(next *models.Reference)
}

// commit appends the movement for h and updates the reference in one atomic
// write guarded by expected. A replayed idempotency key yields the current
// reference and a nil movement.
func (s *Service) commit(ctx context.Context, performer models.Snapshot, ref *models.Reference, expected time.Time, h handOff) (*models.Reference, *models.Movement, error) {
	now := s.now()
	markedTo := userIDs(h.holders)
	divisions, labs := models.PendingUnits(h.holders)

	next := ref.Clone()
	next.Status = h.status
	next.MarkedTo = markedTo
	next.MarkedToDetails = h.holders
	next.PendingDivisions = divisions
	next.PendingLabs = labs
	next.Participants = models.MergeParticipants(ref.Participants, markedTo...)
	if h.remarks != "" {
		next.Remarks = h.remarks
	}
	switch h.status {
	case models.StatusClosed:
		next.ClosedAt = &now
	case models.StatusReopened:
		next.ClosedAt = nil
	}
	if h.mutate != nil {
		h.mutate(next)
	}
	next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, now)

	mv := &models.Movement{
		ID:                 id.NewMovementID(),
		ReferenceID:        ref.ID,
		PerformedBy:        performer.UserID,
		PerformedByDetails: performer,
		MarkedTo:           markedTo,
		MarkedToDetails:    h.holders,
		PendingDivisions:   divisions,
		StatusOnMovement:   h.status,
		Action:             h.action,
		Remarks:            h.remarks,
		IdempotencyKey:     h.key,
		MovementDate:       next.UpdatedAt,
	}

	sctx, cancel := s.storeCtx(ctx)
	err := s.store.CommitMovement(sctx, expected, next, mv)
	cancel()
	switch {
	case err == nil:
		s.metrics.IncrementMovement(string(ref.Scope), string(h.action))
		return next, mv, nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		current, loadErr := s.load(ctx, ref.Scope, ref.ID)
		if loadErr != nil {
			return nil, nil, loadErr
		}
		return current, nil, nil
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncrementConflict(string(ref.Scope), string(h.action))
	}
	return nil, nil, s.translate(err, "commit movement")
}

// ApplyMovement hands a reference to the requested holders with the requested
// status. It is the only path, apart from reopen approval, that changes
// status or holders.
func (s *Service) ApplyMovement(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, req *models.MovementRequest) (_ *models.Reference, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "apply_movement", scope)
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveOperation("apply_movement", start)
	}()

	grant, err := s.authorize(actor, scope, permission.ActionMove)
	if err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	nextStatus, err := models.ParseStatus(req.NextStatus)
	if err != nil {
		return nil, err
	}
	holders, err := id.ParseUserIDs(req.NextHolders)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid holder id")
	}

	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		done, err := s.alreadyApplied(ctx, ref, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if done {
			// A replay returns the reference, so it must not reveal one the
			// actor could not read.
			if !visible(actor, grant, ref) {
				return nil, dErrors.New(dErrors.CodeNotFound, "load reference: not found")
			}
			return ref, nil
		}
	}
	expected := ref.UpdatedAt
	if req.ExpectedUpdatedAt != nil {
		if !req.ExpectedUpdatedAt.UTC().Equal(ref.UpdatedAt) {
			s.metrics.IncrementConflict(string(scope), "apply_movement")
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "reference was modified since it was read, refetch and retry")
		}
		expected = *req.ExpectedUpdatedAt
	}
	if !ref.IsHeldBy(actor.ID) && !grant.Has(permission.ActionOverride) {
		return nil, dErrors.New(dErrors.CodeNotCurrentHolder, "actor does not currently hold reference "+ref.RefID)
	}
	if !ref.Status.CanTransitionTo(nextStatus) {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot move reference from "+ref.Status.String()+" to "+nextStatus.String())
	}
	if len(holders) == 0 {
		if nextStatus != models.StatusClosed {
			return nil, dErrors.New(dErrors.CodeEmptyHolderSet, "at least one next holder is required")
		}
		holders = []id.UserID{actor.ID}
	}
	if len(holders) == 1 && holders[0] == actor.ID && nextStatus == ref.Status {
		return nil, dErrors.New(dErrors.CodeValidation, "a holder cannot hand a reference to themself without changing its status")
	}

	performer, err := s.snapshot(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	holderSnaps, err := s.resolveHolders(ctx, scope, performer, holders)
	if err != nil {
		return nil, err
	}
	next, mv, err := s.commit(ctx, performer, ref, expected, handOff{
		holders: holderSnaps,
		status:  nextStatus,
		action:  models.ActionFor(nextStatus),
		remarks: req.Remarks,
		key:     req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if mv != nil {
		s.logger.InfoContext(ctx, "reference moved",
			"reference_id", ref.ID.String(),
			"status", nextStatus,
			"actor", actor.ID.String(),
			"holders", len(holders),
		)
		s.emit(ctx, movedEvent(next, actor.ID, req.Remarks))
	}
	return next, nil
}

// alreadyApplied reports whether key already produced a movement on ref.
func (s *Service) alreadyApplied(ctx context.Context, ref *models.Reference, key string) (bool, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	_, err := s.store.FindMovementByKey(sctx, ref.Scope, ref.ID, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	}
	return false, s.translate(err, "lookup idempotency key")
}

// UpdatePriority changes the priority of a reference the actor holds. It is
// not a hand-off and leaves the ledger untouched.
func (s *Service) UpdatePriority(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, priority models.Priority) (_ *models.Reference, err error) {
	ctx, span := s.startSpan(ctx, "update_priority", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(actor, scope, permission.ActionMove); err != nil {
		return nil, err
	}
	return s.updatePriority(ctx, actor, scope, refID, priority)
}

func (s *Service) updatePriority(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, priority models.Priority) (*models.Reference, error) {
	if !priority.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown priority: "+string(priority))
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	if !ref.IsHeldBy(actor.ID) {
		return nil, dErrors.New(dErrors.CodeNotCurrentHolder, "actor does not currently hold reference "+ref.RefID)
	}
	if ref.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "priority of a closed reference cannot change")
	}
	if ref.Priority == priority {
		return ref, nil
	}
	next := ref.Clone()
	next.Priority = priority
	next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, s.now())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.UpdateReference(sctx, ref.UpdatedAt, next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementConflict(string(scope), "update_priority")
		}
		return nil, s.translate(err, "update priority")
	}
	return next, nil
}

// RequestReopen records a pending reopen request on a Closed reference.
func (s *Service) RequestReopen(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, body *models.ReopenRequestBody) (_ *models.Reference, err error) {
	ctx, span := s.startSpan(ctx, "request_reopen", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(actor, scope, permission.ActionRequestReopen); err != nil {
		return nil, err
	}
	body.Normalize()
	if err := body.Validate(); err != nil {
		return nil, err
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	if !ref.IsParticipant(actor.ID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "load reference: not found")
	}
	if ref.Status != models.StatusClosed {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "only closed references can be reopened")
	}
	if ref.ReopenRequest != nil {
		return nil, dErrors.New(dErrors.CodeReopenAlreadyPending, "a reopen request is already pending")
	}
	requester, err := s.snapshot(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := ref.Clone()
	next.ReopenRequest = &models.ReopenRequest{
		RequestedBy:        actor.ID,
		RequestedByDetails: requester,
		Reason:             body.Reason,
		RequestedAt:        now,
	}
	next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, now)

	sctx, cancel := s.storeCtx(ctx)
	err = s.store.UpdateReference(sctx, ref.UpdatedAt, next)
	cancel()
	if errors.Is(err, sentinel.ErrConflict) {
		// A racing request wins; report it as pending rather than as a generic conflict.
		if current, loadErr := s.load(ctx, scope, refID); loadErr == nil && current.ReopenRequest != nil {
			return nil, dErrors.New(dErrors.CodeReopenAlreadyPending, "a reopen request is already pending")
		}
		s.metrics.IncrementConflict(string(scope), "request_reopen")
	}
	if err != nil {
		return nil, s.translate(err, "request reopen")
	}

	s.logger.InfoContext(ctx, "reopen requested", "reference_id", ref.ID.String(), "actor", actor.ID.String())
	s.emit(ctx, notify.Event{
		Type:        notify.ReopenRequested,
		ReferenceID: next.ID,
		RefID:       next.RefID,
		Scope:       next.Scope,
		Actor:       actor.ID,
		Status:      next.Status.String(),
		Remarks:     body.Reason,
		OccurredAt:  now,
	})
	return next, nil
}

// ResolveReopen approves or denies the pending reopen request. Approval hands
// the reference back to the requester as Reopened through the ledger.
func (s *Service) ResolveReopen(ctx context.Context, approver models.Actor, scope id.Scope, refID id.ReferenceID, req *models.ResolveReopenRequest) (_ *models.Reference, err error) {
	ctx, span := s.startSpan(ctx, "resolve_reopen", scope)
	defer func() { endSpan(span, err) }()

	if _, err := s.authorize(approver, scope, permission.ActionResolveReopen); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		done, err := s.alreadyApplied(ctx, ref, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if done {
			return ref, nil
		}
	}
	if ref.ReopenRequest == nil {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "no reopen request is pending")
	}
	pending := *ref.ReopenRequest

	var next *models.Reference
	if req.Approve {
		performer, err := s.snapshot(ctx, approver.ID)
		if err != nil {
			return nil, err
		}
		requester, err := s.snapshot(ctx, pending.RequestedBy)
		if err != nil {
			return nil, err
		}
		remarks := req.Remarks
		if remarks == "" {
			remarks = pending.Reason
		}
		var mv *models.Movement
		next, mv, err = s.commit(ctx, performer, ref, ref.UpdatedAt, handOff{
			holders: []models.Snapshot{requester},
			status:  models.StatusReopened,
			action:  models.ActionReopened,
			remarks: remarks,
			key:     req.IdempotencyKey,
			mutate:  func(n *models.Reference) { n.ReopenRequest = nil },
		})
		if err != nil {
			return nil, err
		}
		if mv == nil {
			return next, nil
		}
		s.emit(ctx, movedEvent(next, approver.ID, remarks))
	} else {
		next = ref.Clone()
		next.ReopenRequest = nil
		next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, s.now())
		sctx, cancel := s.storeCtx(ctx)
		err := s.store.UpdateReference(sctx, ref.UpdatedAt, next)
		cancel()
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.metrics.IncrementConflict(string(scope), "resolve_reopen")
			}
			return nil, s.translate(err, "deny reopen")
		}
	}

	approved := req.Approve
	s.logger.InfoContext(ctx, "reopen resolved",
		"reference_id", ref.ID.String(),
		"approved", approved,
		"approver", approver.ID.String(),
	)
	s.emit(ctx, notify.Event{
		Type:        notify.ReopenResolved,
		ReferenceID: next.ID,
		RefID:       next.RefID,
		Scope:       next.Scope,
		Actor:       approver.ID,
		MarkedTo:    next.MarkedTo,
		Status:      next.Status.String(),
		Remarks:     req.Remarks,
		Approved:    &approved,
		OccurredAt:  next.UpdatedAt,
	})
	return next, nil
}

func movedEvent(ref *models.Reference, actor id.UserID, remarks string) notify.Event {
	return notify.Event{
		Type:        notify.ReferenceMoved,
		ReferenceID: ref.ID,
		RefID:       ref.RefID,
		Scope:       ref.Scope,
		Actor:       actor,
		MarkedTo:    ref.MarkedTo,
		Status:      ref.Status.String(),
		Remarks:     remarks,
		OccurredAt:  ref.UpdatedAt,
	}
}
