package identity

import (
	"context"
	"sync"

	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

// InMemoryDirectory is a mutable directory for development and tests. Put
// notifies subscribers the way the real directory's change feed does.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	users    map[id.UserID]Identity
	handlers []ChangeHandler
}

func NewInMemoryDirectory(seed ...Identity) *InMemoryDirectory {
	d := &InMemoryDirectory{users: make(map[id.UserID]Identity, len(seed))}
	for _, u := range seed {
		d.users[u.UserID] = u
	}
	return d
}

func (d *InMemoryDirectory) GetIdentity(ctx context.Context, user id.UserID) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[user]
	if !ok {
		return Identity{}, sentinel.ErrNotFound
	}
	return u, nil
}

// Subscribe registers a handler invoked after each changing Put.
func (d *InMemoryDirectory) Subscribe(h ChangeHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Put stores u and, if its refreshable fields changed, runs every handler in
// registration order. The first handler error is returned.
func (d *InMemoryDirectory) Put(ctx context.Context, u Identity) error {
	d.mu.Lock()
	prev, existed := d.users[u.UserID]
	d.users[u.UserID] = u
	handlers := append([]ChangeHandler(nil), d.handlers...)
	d.mu.Unlock()

	if existed && prev.Fingerprint() == u.Fingerprint() {
		return nil
	}
	for _, h := range handlers {
		if err := h(ctx, u.UserID); err != nil {
			return err
		}
	}
	return nil
}
