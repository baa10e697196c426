// Package identity reads the externally owned user directory and keeps
// cached display identities that references embed as snapshots.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	id "refroute/pkg/domain"
)

// Identity is the displayable part of a user record. Email and UserID are
// stable keys; the remaining fields may change and trigger a resync.
type Identity struct {
	UserID      id.UserID `json:"user_id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	LabName     string    `json:"lab_name"`
	Division    string    `json:"division"`
	Designation string    `json:"designation"`
}

// Fingerprint hashes the refreshable fields. Equal fingerprints mean a sync
// has nothing to write.
func (i Identity) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{i.FullName, i.LabName, i.Division, i.Designation} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Directory resolves a user's current identity. Unknown users yield
// sentinel.ErrNotFound.
type Directory interface {
	GetIdentity(ctx context.Context, user id.UserID) (Identity, error)
}

// Resolver is implemented by caching directories that can answer from their
// source.
type Resolver interface {
	Resolve(ctx context.Context, user id.UserID) (Identity, error)
}

// Authoritative looks user up for a write. Caching directories bypass their
// in-process tier; plain directories already read the source.
func Authoritative(ctx context.Context, d Directory, user id.UserID) (Identity, error) {
	if r, ok := d.(Resolver); ok {
		return r.Resolve(ctx, user)
	}
	return d.GetIdentity(ctx, user)
}

// ChangeHandler reacts to a changed identity.
type ChangeHandler func(ctx context.Context, user id.UserID) error
