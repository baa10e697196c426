package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: the row or document does not exist in its partition
//   - ErrConflict: an optimistic-concurrency token no longer matches the stored row
//   - ErrAlreadyUsed: a unique key (idempotency key, ref code) is already taken
//   - ErrInvalidState: stored data cannot be decoded into a valid entity
//   - ErrUnavailable: the datastore or cache cannot be reached
//
// Validation failures (bad input, missing fields) use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
