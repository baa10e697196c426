// Package service implements the reference lifecycle and movement engine:
// the status state machine, the ledger reads and replay, bulk actions and
// the dashboard. Every status or holder change goes through one path that
// appends a movement and updates the reference atomically under the
// reference's updated_at token.
package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refroute/internal/identity"
	"refroute/internal/notify"
	"refroute/internal/permission"
	"refroute/internal/reference/metrics"
	"refroute/internal/reference/models"
	"refroute/internal/reference/query"
	"refroute/internal/reference/store"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/sentinel"
	"refroute/pkg/requestcontext"
)

// Store persists references and their ledgers. Implementations return
// sentinel errors; the service translates them.
type Store interface {
	CreateReference(ctx context.Context, ref *models.Reference, seed *models.Movement) error
	GetReference(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error)
	ListReferences(ctx context.Context, spec query.Spec) ([]*models.Reference, int, error)
	CommitMovement(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference, mv *models.Movement) error
	UpdateReference(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference) error
	FindMovementByKey(ctx context.Context, scope id.Scope, refID id.ReferenceID, key string) (*models.Movement, error)
	ListMovements(ctx context.Context, scope id.Scope, refID id.ReferenceID, after *store.MovementCursor, limit int) ([]*models.Movement, error)
	LatestMovement(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Movement, error)
	Dashboard(ctx context.Context, spec query.DashboardSpec) (models.Dashboard, error)
}

// Directory resolves display identities for snapshots.
type Directory interface {
	GetIdentity(ctx context.Context, user id.UserID) (identity.Identity, error)
}

// Config tunes the engine.
type Config struct {
	DatastoreTimeout     time.Duration
	BulkConcurrency      int
	BulkMaxItems         int
	PendingThresholdDays int
	Limits               query.Limits
}

func DefaultConfig() Config {
	return Config{
		DatastoreTimeout:     3 * time.Second,
		BulkConcurrency:      8,
		BulkMaxItems:         500,
		PendingThresholdDays: 7,
		Limits:               query.Limits{DefaultLimit: 20, MaxLimit: 100},
	}
}

// Service is the reference engine.
type Service struct {
	store       Store
	directory   Directory
	permissions permission.Evaluator
	notifier    notify.Sink
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	cfg         Config
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) {
		s.notifier = sink
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// New constructs a Service.
func New(st Store, directory Directory, permissions permission.Evaluator, opts ...Option) *Service {
	s := &Service{
		store:       st,
		directory:   directory,
		permissions: permissions,
		notifier:    notify.Nop{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("refroute/reference"),
		clock:       time.Now,
		cfg:         DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	defaults := DefaultConfig()
	if s.cfg.DatastoreTimeout <= 0 {
		s.cfg.DatastoreTimeout = defaults.DatastoreTimeout
	}
	if s.cfg.BulkConcurrency <= 0 {
		s.cfg.BulkConcurrency = defaults.BulkConcurrency
	}
	if s.cfg.BulkMaxItems <= 0 {
		s.cfg.BulkMaxItems = defaults.BulkMaxItems
	}
	if s.cfg.PendingThresholdDays <= 0 {
		s.cfg.PendingThresholdDays = defaults.PendingThresholdDays
	}
	if s.cfg.Limits.DefaultLimit <= 0 || s.cfg.Limits.MaxLimit <= 0 {
		s.cfg.Limits = defaults.Limits
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// storeCtx bounds one datastore call.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.DatastoreTimeout)
}

func (s *Service) startSpan(ctx context.Context, op string, scope id.Scope) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "reference."+op, trace.WithAttributes(
		attribute.String("reference.scope", string(scope)),
		attribute.String("request.id", requestcontext.RequestID(ctx)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// authorize validates the actor and scope, then consults the evaluator once.
// The returned grant answers every later capability check of the request.
func (s *Service) authorize(actor models.Actor, scope id.Scope, action permission.Action) (permission.Grant, error) {
	if actor.ID.IsNil() {
		return permission.Grant{}, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	if !scope.IsValid() {
		return permission.Grant{}, dErrors.New(dErrors.CodeValidation, "unknown scope: "+string(scope))
	}
	grant := s.permissions.Grant(actor.Role, scope)
	if !grant.Has(action) {
		return permission.Grant{}, dErrors.New(dErrors.CodeForbidden, "role "+actor.Role+" may not "+string(action)+" "+string(scope)+" references")
	}
	return grant, nil
}

// translate maps store and context failures onto domain codes. Domain errors
// pass through unchanged.
func (s *Service) translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, what+": datastore timeout")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+": not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, what+": reference was modified concurrently, refetch and retry")
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, driver.ErrBadConn):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, what+": datastore unavailable")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, what+": datastore unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, what)
}

func (s *Service) load(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ref, err := s.store.GetReference(sctx, scope, refID)
	if err != nil {
		return nil, s.translate(err, "load reference")
	}
	return ref, nil
}

// snapshot resolves one user for embedding. It reads past any in-process
// cache: a snapshot written after the user's resync must not be stale.
func (s *Service) snapshot(ctx context.Context, user id.UserID) (models.Snapshot, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	u, err := identity.Authoritative(sctx, s.directory, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Snapshot{}, dErrors.New(dErrors.CodeValidation, "unknown user "+user.String())
		}
		return models.Snapshot{}, s.translate(err, "resolve identity")
	}
	return models.SnapshotOf(u), nil
}

// resolveHolders de-duplicates holders and checks the scope's holder rules.
func (s *Service) resolveHolders(ctx context.Context, scope id.Scope, actor models.Snapshot, holders []id.UserID) ([]models.Snapshot, error) {
	unique := models.MergeParticipants(nil, holders...)
	if len(unique) == 0 {
		return nil, dErrors.New(dErrors.CodeEmptyHolderSet, "at least one holder is required")
	}
	if !scope.AllowsMultipleHolders() && len(unique) > 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "local references have exactly one holder")
	}
	if len(unique) > models.MaxHolders {
		return nil, dErrors.New(dErrors.CodeValidation, "too many holders")
	}
	out := make([]models.Snapshot, 0, len(unique))
	for _, h := range unique {
		snap, err := s.snapshot(ctx, h)
		if err != nil {
			return nil, err
		}
		if scope == id.ScopeLocal && actor.LabName != "" && snap.LabName != actor.LabName {
			return nil, dErrors.New(dErrors.CodeValidation, "local references stay within lab "+actor.LabName)
		}
		out = append(out, snap)
	}
	return out, nil
}

func visible(actor models.Actor, grant permission.Grant, ref *models.Reference) bool {
	return ref.IsParticipant(actor.ID) || grant.Has(permission.ActionViewAll)
}

func (s *Service) emit(ctx context.Context, ev notify.Event) {
	s.notifier.Notify(ctx, ev)
}

func userIDs(snaps []models.Snapshot) []id.UserID {
	out := make([]id.UserID, len(snaps))
	for i, snap := range snaps {
		out[i] = snap.UserID
	}
	return out
}
