// Package identitysync keeps the holder snapshots embedded in references
// consistent with the identity directory. Only current holders are refreshed;
// creator snapshots are historical and never rewritten.
package identitysync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"refroute/internal/identity"
	"refroute/internal/reference/metrics"
	"refroute/internal/reference/models"
	"refroute/internal/reference/store"
	id "refroute/pkg/domain"
	dErrors "refroute/pkg/domain-errors"
	"refroute/pkg/platform/sentinel"
)

// Store is the part of the reference store the synchronizer needs.
type Store interface {
	GetReference(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error)
	LatestMovement(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Movement, error)
	ListHeldBy(ctx context.Context, scope id.Scope, user id.UserID, cursor store.HeldByCursor, limit int) ([]*models.Reference, error)
	RefreshHolders(ctx context.Context, scope id.Scope, batch []store.HolderRefresh) ([]id.ReferenceID, error)
}

// Source returns an identity bypassing any cache.
type Source interface {
	Fresh(ctx context.Context, user id.UserID) (identity.Identity, error)
}

// Report summarises one sync run.
type Report struct {
	User      id.UserID `json:"user"`
	Skipped   bool      `json:"skipped"`
	Scanned   int       `json:"scanned"`
	Refreshed int       `json:"refreshed"`
	Conflicts int       `json:"conflicts"`
}

const (
	defaultBatchSize  = 200
	defaultMaxRetries = 3
)

// Synchronizer refreshes holder snapshots in bounded batches.
type Synchronizer struct {
	store       Store
	source      Source
	checkpoints Checkpoints
	batchSize   int
	maxRetries  int
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
}

type Option func(*Synchronizer)

func WithBatchSize(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Synchronizer) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithCheckpoints(c Checkpoints) Option {
	return func(s *Synchronizer) {
		s.checkpoints = c
	}
}

// WithTimeout bounds every datastore call.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Synchronizer) {
		s.clock = clock
	}
}

func New(st Store, source Source, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:       st,
		source:      source,
		checkpoints: NewMemoryCheckpoints(),
		batchSize:   defaultBatchSize,
		maxRetries:  defaultMaxRetries,
		timeout:     3 * time.Second,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle adapts Sync to identity.ChangeHandler.
func (s *Synchronizer) Handle(ctx context.Context, user id.UserID) error {
	_, err := s.Sync(ctx, user)
	return err
}

// Sync refreshes user's snapshot wherever user currently holds a reference.
// A run whose identity fingerprint matches the checkpoint does nothing.
func (s *Synchronizer) Sync(ctx context.Context, user id.UserID) (Report, error) {
	return s.run(ctx, user, false)
}

// Force syncs regardless of the checkpoint. Unchanged snapshots are still not
// rewritten.
func (s *Synchronizer) Force(ctx context.Context, user id.UserID) (Report, error) {
	return s.run(ctx, user, true)
}

func (s *Synchronizer) run(ctx context.Context, user id.UserID, force bool) (Report, error) {
	report := Report{User: user}
	u, err := s.source.Fresh(ctx, user)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "identity sync skipped, user not in directory", "user_id", user.String())
		report.Skipped = true
		return report, nil
	}
	if err != nil {
		return report, dErrors.Wrap(err, dErrors.CodeUnavailable, "load identity")
	}
	fingerprint := u.Fingerprint()
	if !force {
		seen, ok, err := s.checkpoints.Get(ctx, user)
		if err != nil {
			s.logger.WarnContext(ctx, "identity sync checkpoint unreadable", "user_id", user.String(), "error", err)
		}
		if ok && seen == fingerprint {
			report.Skipped = true
			return report, nil
		}
	}

	snap := models.SnapshotOf(u)
	var unresolved []id.ReferenceID
	for _, scope := range id.AllScopes() {
		left, err := s.syncScope(ctx, scope, snap, &report)
		if err != nil {
			return report, err
		}
		unresolved = append(unresolved, left...)
	}
	s.metrics.AddSyncRefreshed(report.Refreshed)

	if len(unresolved) > 0 {
		s.logger.WarnContext(ctx, "identity sync left references behind",
			"user_id", user.String(),
			"references", len(unresolved),
		)
		return report, dErrors.New(dErrors.CodeConcurrentModification,
			fmt.Sprintf("%d references kept changing during identity sync", len(unresolved)))
	}
	if err := s.checkpoints.Put(ctx, user, fingerprint); err != nil {
		s.logger.WarnContext(ctx, "identity sync checkpoint not stored", "user_id", user.String(), "error", err)
	}
	s.logger.InfoContext(ctx, "identity synced",
		"user_id", user.String(),
		"scanned", report.Scanned,
		"refreshed", report.Refreshed,
		"conflicts", report.Conflicts,
	)
	return report, nil
}

// syncScope pages the references held by snap's user and refreshes each
// batch in one write. It returns the references still conflicting after
// retries.
func (s *Synchronizer) syncScope(ctx context.Context, scope id.Scope, snap models.Snapshot, report *Report) ([]id.ReferenceID, error) {
	var (
		cursor     store.HeldByCursor
		unresolved []id.ReferenceID
	)
	for {
		sctx, cancel := context.WithTimeout(ctx, s.timeout)
		page, err := s.store.ListHeldBy(sctx, scope, snap.UserID, cursor, s.batchSize)
		cancel()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list held references")
		}
		report.Scanned += len(page)

		left, err := s.refreshBatch(ctx, scope, snap, page, report)
		if err != nil {
			return nil, err
		}
		unresolved = append(unresolved, left...)

		if len(page) < s.batchSize {
			return unresolved, nil
		}
		last := page[len(page)-1].ID
		cursor = store.HeldByCursor{AfterID: &last}
	}
}

func (s *Synchronizer) refreshBatch(ctx context.Context, scope id.Scope, snap models.Snapshot, refs []*models.Reference, report *Report) ([]id.ReferenceID, error) {
	pending := refs
	for attempt := 0; ; attempt++ {
		batch, err := s.plan(ctx, scope, snap, pending)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, nil
		}
		sctx, cancel := context.WithTimeout(ctx, s.timeout)
		conflicts, err := s.store.RefreshHolders(sctx, scope, batch)
		cancel()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh holders")
		}
		report.Refreshed += len(batch) - len(conflicts)
		report.Conflicts += len(conflicts)
		for range conflicts {
			s.metrics.IncrementConflict(string(scope), "identity_sync")
		}
		if len(conflicts) == 0 || attempt == s.maxRetries {
			return conflicts, nil
		}

		pending = pending[:0:0]
		for _, refID := range conflicts {
			sctx, cancel := context.WithTimeout(ctx, s.timeout)
			ref, err := s.store.GetReference(sctx, scope, refID)
			cancel()
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "reload reference")
			}
			if ref.IsHeldBy(snap.UserID) {
				pending = append(pending, ref)
			}
		}
	}
}

// plan builds refresh items for references whose embedded holder snapshot
// differs from snap. Unchanged references are left alone so updatedAt does
// not churn.
func (s *Synchronizer) plan(ctx context.Context, scope id.Scope, snap models.Snapshot, refs []*models.Reference) ([]store.HolderRefresh, error) {
	batch := make([]store.HolderRefresh, 0, len(refs))
	now := s.clock()
	for _, ref := range refs {
		next, changed := refreshed(ref, snap)
		if !changed {
			continue
		}
		next.UpdatedAt = models.NextUpdatedAt(ref.UpdatedAt, now)
		item := store.HolderRefresh{Reference: next, ExpectedUpdatedAt: ref.UpdatedAt}

		sctx, cancel := context.WithTimeout(ctx, s.timeout)
		latest, err := s.store.LatestMovement(sctx, scope, ref.ID)
		cancel()
		switch {
		case err == nil:
			if slices.Equal(latest.MarkedTo, ref.MarkedTo) {
				item.LatestMovementID = &latest.ID
			}
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load latest movement")
		}
		batch = append(batch, item)
	}
	return batch, nil
}

// refreshed returns a copy of ref with snap replacing the user's holder
// details and the pending units recomputed.
func refreshed(ref *models.Reference, snap models.Snapshot) (*models.Reference, bool) {
	changed := false
	next := ref.Clone()
	for i, d := range next.MarkedToDetails {
		if d.UserID != snap.UserID || d.SameDisplay(snap) {
			continue
		}
		next.MarkedToDetails[i] = snap
		changed = true
	}
	if !changed {
		return ref, false
	}
	next.PendingDivisions, next.PendingLabs = models.PendingUnits(next.MarkedToDetails)
	return next, true
}
