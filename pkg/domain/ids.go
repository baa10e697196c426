package domain

import (
	"github.com/google/uuid"

	dErrors "refroute/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep a reference id from being passed where
// a user id is expected; conversions must be explicit.
type (
	UserID      uuid.UUID
	ReferenceID uuid.UUID
	MovementID  uuid.UUID
)

func parseID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// ParseUserID validates external input at trust boundaries.
func ParseUserID(s string) (UserID, error) {
	id, err := parseID("user id", s)
	return UserID(id), err
}

// ParseReferenceID validates external input at trust boundaries.
func ParseReferenceID(s string) (ReferenceID, error) {
	id, err := parseID("reference id", s)
	return ReferenceID(id), err
}

// ParseMovementID validates external input at trust boundaries.
func ParseMovementID(s string) (MovementID, error) {
	id, err := parseID("movement id", s)
	return MovementID(id), err
}

func NewReferenceID() ReferenceID { return ReferenceID(uuid.New()) }
func NewMovementID() MovementID   { return MovementID(uuid.New()) }

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id ReferenceID) String() string { return uuid.UUID(id).String() }
func (id MovementID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ReferenceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MovementID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ReferenceID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id MovementID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ReferenceID) UnmarshalText(b []byte) error {
	parsed, err := ParseReferenceID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MovementID) UnmarshalText(b []byte) error {
	parsed, err := ParseMovementID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// UserIDStrings converts typed ids for storage layers that bind text arrays.
func UserIDStrings(ids []UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ParseUserIDs is the inverse of UserIDStrings.
func ParseUserIDs(values []string) ([]UserID, error) {
	out := make([]UserID, 0, len(values))
	for _, v := range values {
		id, err := ParseUserID(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
