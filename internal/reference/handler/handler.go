// Package handler exposes the reference engine over HTTP. Every response is
// the {success, message, data} envelope.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"refroute/internal/reference/models"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/httputil"
	pstrings "refroute/pkg/platform/strings"
	"refroute/pkg/requestcontext"
)

// HeaderIdempotencyKey feeds the movement idempotency key when the body has none.
const HeaderIdempotencyKey = "Idempotency-Key"

// Service is the engine surface the handler drives.
type Service interface {
	Create(ctx context.Context, actor models.Actor, scope id.Scope, req *models.CreateReferenceRequest) (*models.Reference, error)
	Get(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (*models.Reference, error)
	List(ctx context.Context, actor models.Actor, scope id.Scope, req models.ListRequest) (*models.Page, error)
	ApplyMovement(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, req *models.MovementRequest) (*models.Reference, error)
	UpdatePriority(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, priority models.Priority) (*models.Reference, error)
	RequestReopen(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID, body *models.ReopenRequestBody) (*models.Reference, error)
	ResolveReopen(ctx context.Context, approver models.Actor, scope id.Scope, refID id.ReferenceID, req *models.ResolveReopenRequest) (*models.Reference, error)
	ListMovements(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) ([]*models.Movement, error)
	ReplayState(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (*models.ReplayReport, error)
	Repair(ctx context.Context, actor models.Actor, scope id.Scope, refID id.ReferenceID) (*models.ReplayReport, error)
	BulkApply(ctx context.Context, actor models.Actor, scope id.Scope, req *models.BulkRequest) (*models.BulkResult, error)
	Dashboard(ctx context.Context, actor models.Actor, scope id.Scope) (models.Dashboard, error)
}

// Handler serves /api/v1/{scope}/references.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the reference routes. Authentication is expected to have
// populated the request context already.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/{scope}/references", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/dashboard", h.handleDashboard)
		r.Post("/bulk", h.handleBulk)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/movements", h.handleApplyMovement)
			r.Get("/movements", h.handleListMovements)
			r.Put("/priority", h.handleUpdatePriority)
			r.Post("/reopen-request", h.handleRequestReopen)
			r.Post("/reopen-resolution", h.handleResolveReopen)
			r.Get("/replay", h.handleReplay)
			r.Post("/repair", h.handleRepair)
		})
	})
}

type priorityRequest struct {
	Priority string `json:"priority"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.target(w, r)
	if !ok {
		return
	}
	var req models.CreateReferenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	ref, err := h.svc.Create(r.Context(), actor, scope, &req)
	if err != nil {
		h.fail(w, r, "create reference", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, "reference created", ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := listRequest(r)
	if err != nil {
		h.fail(w, r, "list references", err)
		return
	}
	page, err := h.svc.List(r.Context(), actor, scope, req)
	if err != nil {
		h.fail(w, r, "list references", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "references", page.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.target(w, r)
	if !ok {
		return
	}
	dash, err := h.svc.Dashboard(r.Context(), actor, scope)
	if err != nil {
		h.fail(w, r, "dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "dashboard", dash)
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	actor, scope, ok := h.target(w, r)
	if !ok {
		return
	}
	var req models.BulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.BulkApply(r.Context(), actor, scope, &req)
	if err != nil {
		h.fail(w, r, "bulk apply", err)
		return
	}
	message := "bulk action applied"
	if len(result.Failed) > 0 {
		message = strconv.Itoa(len(result.Failed)) + " of " + strconv.Itoa(len(result.Failed)+len(result.Succeeded)) + " references were not updated"
	}
	httputil.WriteJSON(w, http.StatusOK, message, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	ref, err := h.svc.Get(r.Context(), actor, scope, refID)
	if err != nil {
		h.fail(w, r, "get reference", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "reference", ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleApplyMovement(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	var req models.MovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}
	ref, err := h.svc.ApplyMovement(r.Context(), actor, scope, refID, &req)
	if err != nil {
		h.fail(w, r, "apply movement", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "reference moved", ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	movements, err := h.svc.ListMovements(r.Context(), actor, scope, refID)
	if err != nil {
		h.fail(w, r, "list movements", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "movements", movements)
}

func (h *Handler) handleUpdatePriority(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	var req priorityRequest
	if !h.decode(w, r, &req) {
		return
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		h.fail(w, r, "update priority", err)
		return
	}
	ref, err := h.svc.UpdatePriority(r.Context(), actor, scope, refID, priority)
	if err != nil {
		h.fail(w, r, "update priority", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "priority updated", ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleRequestReopen(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	var body models.ReopenRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	ref, err := h.svc.RequestReopen(r.Context(), actor, scope, refID, &body)
	if err != nil {
		h.fail(w, r, "request reopen", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "reopen requested", ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleResolveReopen(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	var req models.ResolveReopenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}
	ref, err := h.svc.ResolveReopen(r.Context(), actor, scope, refID, &req)
	if err != nil {
		h.fail(w, r, "resolve reopen", err)
		return
	}
	message := "reopen denied"
	if req.Approve {
		message = "reference reopened"
	}
	httputil.WriteJSON(w, http.StatusOK, message, ref.View(requestcontext.Now(r.Context())))
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	report, err := h.svc.ReplayState(r.Context(), actor, scope, refID)
	if err != nil {
		h.fail(w, r, "replay", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "replay", report)
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	actor, scope, refID, ok := h.targetRef(w, r)
	if !ok {
		return
	}
	report, err := h.svc.Repair(r.Context(), actor, scope, refID)
	if err != nil {
		h.fail(w, r, "repair", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, "repair", report)
}

// target resolves the authenticated actor and the scope path parameter.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (models.Actor, id.Scope, bool) {
	ctx := r.Context()
	user := requestcontext.UserID(ctx)
	if user.IsNil() {
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return models.Actor{}, "", false
	}
	scope, err := id.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return models.Actor{}, "", false
	}
	return models.Actor{ID: user, Role: requestcontext.Role(ctx)}, scope, true
}

func (h *Handler) targetRef(w http.ResponseWriter, r *http.Request) (models.Actor, id.Scope, id.ReferenceID, bool) {
	actor, scope, ok := h.target(w, r)
	if !ok {
		return models.Actor{}, "", id.ReferenceID{}, false
	}
	refID, err := id.ParseReferenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return models.Actor{}, "", id.ReferenceID{}, false
	}
	return actor, scope, refID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if dErrors.HTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"code", code,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", code,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// listRequest reads the filter query. Multi-value keys accept repeated
// parameters and comma-separated values.
func listRequest(r *http.Request) (models.ListRequest, error) {
	q := r.URL.Query()
	req := models.ListRequest{
		Status:    pstrings.SplitList(q["status"]),
		Priority:  pstrings.SplitList(q["priority"]),
		MarkedTo:  pstrings.SplitList(q["markedTo"]),
		CreatedBy: pstrings.SplitList(q["createdBy"]),
		Division:  pstrings.SplitList(q["division"]),
		Subject:   q.Get("subject"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	var err error
	if req.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return models.ListRequest{}, err
	}
	if req.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return models.ListRequest{}, err
	}
	if raw := q.Get("pendingDays"); raw != "" {
		days, err := intParam(raw, "pendingDays")
		if err != nil {
			return models.ListRequest{}, err
		}
		req.PendingDays = &days
	}
	return req, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return n, nil
}
