package service

import (
	"context"
	"errors"

	"refroute/internal/permission"
	"refroute/internal/reference/models"
	"refroute/internal/reference/query"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

// List returns one page of references matching req. Actors without view_all
// only see references they participate in.
func (s *Service) List(ctx context.Context, actor models.Actor, scope id.Scope, req models.ListRequest) (_ *models.Page, err error) {
	ctx, span := s.startSpan(ctx, "list", scope)
	defer func() { endSpan(span, err) }()

	grant, err := s.authorize(actor, scope, permission.ActionView)
	if err != nil {
		return nil, err
	}
	filters, sort, page, limit, err := query.FromListRequest(req, s.cfg.Limits)
	if err != nil {
		return nil, err
	}
	filters.VisibleTo = visibleTo(actor, grant)
	spec := query.Build(scope, filters, sort, page, limit, s.now())

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, total, err := s.store.ListReferences(sctx, spec)
	if err != nil {
		return nil, s.translate(err, "list references")
	}
	return &models.Page{Items: items, Total: total, Page: spec.Page, Limit: spec.Limit}, nil
}

// Dashboard aggregates the rollup counts of scope over the references List
// would show actor. It always reads the store, never a cache.
func (s *Service) Dashboard(ctx context.Context, actor models.Actor, scope id.Scope) (_ models.Dashboard, err error) {
	ctx, span := s.startSpan(ctx, "dashboard", scope)
	defer func() { endSpan(span, err) }()

	grant, err := s.authorize(actor, scope, permission.ActionDashboard)
	if err != nil {
		return models.Dashboard{}, err
	}
	var division string
	sctx, cancel := s.storeCtx(ctx)
	me, err := s.directory.GetIdentity(sctx, actor.ID)
	cancel()
	switch {
	case err == nil:
		division = me.Division
	case errors.Is(err, sentinel.ErrNotFound):
		s.logger.WarnContext(ctx, "dashboard actor missing from directory", "actor", actor.ID.String())
	default:
		return models.Dashboard{}, s.translate(err, "resolve identity")
	}

	spec := query.BuildDashboard(scope, visibleTo(actor, grant), actor.ID, division, s.cfg.PendingThresholdDays, s.now())
	sctx, cancel = s.storeCtx(ctx)
	defer cancel()
	result, err := s.store.Dashboard(sctx, spec)
	if err != nil {
		return models.Dashboard{}, s.translate(err, "dashboard")
	}
	return result, nil
}

func visibleTo(actor models.Actor, grant permission.Grant) *id.UserID {
	if grant.Has(permission.ActionViewAll) {
		return nil
	}
	user := actor.ID
	return &user
}
