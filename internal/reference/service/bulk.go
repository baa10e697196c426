package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"refroute/internal/permission"
	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
)

// bulkPlan is the batch-wide part of a bulk action, resolved once.
type bulkPlan struct {
	kind      models.BulkActionKind
	performer models.Snapshot
	holders   []models.Snapshot
	priority  models.Priority
	remarks   string
}

// BulkApply applies one action to every id independently. Per-item failures
// are collected in the result; only a structurally invalid batch fails as a
// whole. Results keep the input order.
func (s *Service) BulkApply(ctx context.Context, actor models.Actor, scope id.Scope, req *models.BulkRequest) (_ *models.BulkResult, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "bulk_apply", scope)
	defer func() {
		endSpan(span, err)
		s.metrics.ObserveOperation("bulk_apply", start)
	}()

	if _, err := s.authorize(actor, scope, permission.ActionBulk); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(s.cfg.BulkMaxItems); err != nil {
		return nil, err
	}
	plan := bulkPlan{kind: req.Action, remarks: req.Remarks}
	plan.performer, err = s.snapshot(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	switch req.Action {
	case models.BulkReassign:
		holders, err := id.ParseUserIDs(req.Holders)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid holder id")
		}
		if plan.holders, err = s.resolveHolders(ctx, scope, plan.performer, holders); err != nil {
			return nil, err
		}
	case models.BulkMarkPriority:
		plan.priority = models.Priority(req.Priority)
	}

	failures := make([]*models.BulkFailure, len(req.IDs))
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.BulkConcurrency)
	for i, raw := range req.IDs {
		g.Go(func() error {
			if err := s.bulkItem(ctx, actor, scope, raw, plan); err != nil {
				failures[i] = &models.BulkFailure{ID: raw, Reason: dErrors.CodeOf(err), Message: message(err)}
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BulkResult{Succeeded: make([]string, 0, len(req.IDs)), Failed: make([]models.BulkFailure, 0)}
	for i, raw := range req.IDs {
		if f := failures[i]; f != nil {
			result.Failed = append(result.Failed, *f)
			s.metrics.IncrementBulkItem(string(req.Action), "failed")
			continue
		}
		result.Succeeded = append(result.Succeeded, raw)
		s.metrics.IncrementBulkItem(string(req.Action), "succeeded")
	}
	s.logger.InfoContext(ctx, "bulk action applied",
		"action", req.Action,
		"scope", scope,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result, nil
}

// bulkItem applies the plan to one id. Eligibility is checked per document;
// permissions were checked once for the batch.
func (s *Service) bulkItem(ctx context.Context, actor models.Actor, scope id.Scope, raw string, plan bulkPlan) error {
	refID, err := id.ParseReferenceID(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid reference id")
	}
	if plan.kind == models.BulkMarkPriority {
		_, err := s.updatePriority(ctx, actor, scope, refID, plan.priority)
		return err
	}

	ref, err := s.load(ctx, scope, refID)
	if err != nil {
		return err
	}
	if !ref.IsHeldBy(actor.ID) {
		return dErrors.New(dErrors.CodeNotCurrentHolder, "actor does not currently hold reference "+ref.RefID)
	}

	h := handOff{remarks: plan.remarks}
	switch plan.kind {
	case models.BulkReassign:
		h.holders = plan.holders
		h.status = models.StatusInProgress
	case models.BulkClose:
		h.holders = []models.Snapshot{plan.performer}
		h.status = models.StatusClosed
	}
	if !ref.Status.CanTransitionTo(h.status) {
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot move reference from "+ref.Status.String()+" to "+h.status.String())
	}
	if len(h.holders) == 1 && h.holders[0].UserID == actor.ID && h.status == ref.Status {
		return dErrors.New(dErrors.CodeValidation, "a holder cannot hand a reference to themself without changing its status")
	}
	h.action = models.ActionFor(h.status)

	next, mv, err := s.commit(ctx, plan.performer, ref, ref.UpdatedAt, h)
	if err != nil {
		return err
	}
	if mv != nil {
		s.emit(ctx, movedEvent(next, actor.ID, plan.remarks))
	}
	return nil
}

func message(err error) string {
	if de, ok := dErrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}
