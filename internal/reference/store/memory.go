package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"refroute/internal/reference/models"
	"refroute/internal/reference/query"
	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

type partition struct {
	refs      map[id.ReferenceID]*models.Reference
	refCodes  map[string]id.ReferenceID
	movements map[id.ReferenceID][]*models.Movement
	idemKeys  map[id.ReferenceID]map[string]id.MovementID
}

func newPartition() *partition {
	return &partition{
		refs:      make(map[id.ReferenceID]*models.Reference),
		refCodes:  make(map[string]id.ReferenceID),
		movements: make(map[id.ReferenceID][]*models.Movement),
		idemKeys:  make(map[id.ReferenceID]map[string]id.MovementID),
	}
}

// InMemoryStore is a process-local store for development and tests. One mutex
// guards both partitions, which makes every combined write atomic.
type InMemoryStore struct {
	mu         sync.RWMutex
	partitions map[id.Scope]*partition
}

// NewInMemory creates an empty store with both partitions.
func NewInMemory() *InMemoryStore {
	s := &InMemoryStore{partitions: make(map[id.Scope]*partition)}
	for _, scope := range id.AllScopes() {
		s.partitions[scope] = newPartition()
	}
	return s
}

func (s *InMemoryStore) partition(scope id.Scope) (*partition, error) {
	p, ok := s.partitions[scope]
	if !ok {
		return nil, fmt.Errorf("unknown scope %q: %w", scope, sentinel.ErrInvalidState)
	}
	return p, nil
}

func (s *InMemoryStore) CreateReference(ctx context.Context, ref *models.Reference, seed *models.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ref.Scope)
	if err != nil {
		return err
	}
	if _, exists := p.refs[ref.ID]; exists {
		return fmt.Errorf("reference %s: %w", ref.ID, sentinel.ErrAlreadyUsed)
	}
	if _, exists := p.refCodes[ref.RefID]; exists {
		return fmt.Errorf("ref id %s: %w", ref.RefID, sentinel.ErrAlreadyUsed)
	}

	p.refs[ref.ID] = ref.Clone()
	p.refCodes[ref.RefID] = ref.ID
	p.appendMovement(seed)
	return nil
}

func (p *partition) appendMovement(m *models.Movement) {
	cp := cloneMovement(m)
	list := append(p.movements[m.ReferenceID], cp)
	slices.SortStableFunc(list, compareMovements)
	p.movements[m.ReferenceID] = list
	if m.IdempotencyKey != "" {
		keys := p.idemKeys[m.ReferenceID]
		if keys == nil {
			keys = make(map[string]id.MovementID)
			p.idemKeys[m.ReferenceID] = keys
		}
		keys[m.IdempotencyKey] = m.ID
	}
}

func (s *InMemoryStore) GetReference(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	ref, ok := p.refs[refID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return ref.Clone(), nil
}

func (s *InMemoryStore) ListReferences(ctx context.Context, spec query.Spec) ([]*models.Reference, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(spec.Scope)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*models.Reference, 0)
	for _, ref := range p.refs {
		if spec.Matches(ref) {
			matched = append(matched, ref)
		}
	}
	slices.SortFunc(matched, spec.Compare)

	total := len(matched)
	start := min(spec.Offset(), total)
	end := total
	if spec.Limit > 0 {
		end = min(start+spec.Limit, total)
	}
	out := make([]*models.Reference, 0, end-start)
	for _, ref := range matched[start:end] {
		out = append(out, ref.Clone())
	}
	return out, total, nil
}

func (s *InMemoryStore) CommitMovement(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference, mv *models.Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ref.Scope)
	if err != nil {
		return err
	}
	current, ok := p.refs[ref.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if mv.IdempotencyKey != "" {
		if _, dup := p.idemKeys[ref.ID][mv.IdempotencyKey]; dup {
			return fmt.Errorf("idempotency key %q: %w", mv.IdempotencyKey, sentinel.ErrAlreadyUsed)
		}
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return sentinel.ErrConflict
	}

	p.appendMovement(mv)
	p.refs[ref.ID] = ref.Clone()
	return nil
}

func (s *InMemoryStore) UpdateReference(ctx context.Context, expectedUpdatedAt time.Time, ref *models.Reference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ref.Scope)
	if err != nil {
		return err
	}
	current, ok := p.refs[ref.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return sentinel.ErrConflict
	}
	p.refs[ref.ID] = ref.Clone()
	return nil
}

func (s *InMemoryStore) FindMovementByKey(ctx context.Context, scope id.Scope, refID id.ReferenceID, key string) (*models.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	mvID, ok := p.idemKeys[refID][key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	for _, m := range p.movements[refID] {
		if m.ID == mvID {
			return cloneMovement(m), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListMovements(ctx context.Context, scope id.Scope, refID id.ReferenceID, after *MovementCursor, limit int) ([]*models.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Movement, 0)
	for _, m := range p.movements[refID] {
		if !after.After(m) {
			continue
		}
		out = append(out, cloneMovement(m))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestMovement(ctx context.Context, scope id.Scope, refID id.ReferenceID) (*models.Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	list := p.movements[refID]
	if len(list) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return cloneMovement(list[len(list)-1]), nil
}

func (s *InMemoryStore) Dashboard(ctx context.Context, spec query.DashboardSpec) (models.Dashboard, error) {
	if err := ctx.Err(); err != nil {
		return models.Dashboard{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(spec.Scope)
	if err != nil {
		return models.Dashboard{}, err
	}
	result := models.Dashboard{Scope: spec.Scope, PendingDays: spec.PendingDays}
	for _, ref := range p.refs {
		spec.Tally(&result, ref)
	}
	return result, nil
}

func (s *InMemoryStore) ListHeldBy(ctx context.Context, scope id.Scope, user id.UserID, cursor HeldByCursor, limit int) ([]*models.Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	held := make([]*models.Reference, 0)
	for _, ref := range p.refs {
		if !ref.IsHeldBy(user) {
			continue
		}
		if cursor.AfterID != nil && ref.ID.String() <= cursor.AfterID.String() {
			continue
		}
		held = append(held, ref)
	}
	slices.SortFunc(held, func(a, b *models.Reference) int {
		switch {
		case a.ID.String() < b.ID.String():
			return -1
		case a.ID.String() > b.ID.String():
			return 1
		}
		return 0
	})
	if limit > 0 && len(held) > limit {
		held = held[:limit]
	}
	out := make([]*models.Reference, len(held))
	for i, ref := range held {
		out[i] = ref.Clone()
	}
	return out, nil
}

func (s *InMemoryStore) RefreshHolders(ctx context.Context, scope id.Scope, batch []HolderRefresh) ([]id.ReferenceID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(scope)
	if err != nil {
		return nil, err
	}
	var conflicts []id.ReferenceID
	for _, item := range batch {
		current, ok := p.refs[item.Reference.ID]
		if !ok || !current.UpdatedAt.Equal(item.ExpectedUpdatedAt) {
			conflicts = append(conflicts, item.Reference.ID)
			continue
		}
		p.refs[item.Reference.ID] = item.Reference.Clone()
		if item.LatestMovementID == nil {
			continue
		}
		for _, m := range p.movements[item.Reference.ID] {
			if m.ID == *item.LatestMovementID {
				m.MarkedToDetails = slices.Clone(item.Reference.MarkedToDetails)
				m.PendingDivisions = slices.Clone(item.Reference.PendingDivisions)
			}
		}
	}
	return conflicts, nil
}

func cloneMovement(m *models.Movement) *models.Movement {
	if m == nil {
		return nil
	}
	c := *m
	c.MarkedTo = slices.Clone(m.MarkedTo)
	c.MarkedToDetails = slices.Clone(m.MarkedToDetails)
	c.PendingDivisions = slices.Clone(m.PendingDivisions)
	return &c
}
