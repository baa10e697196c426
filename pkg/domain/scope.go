package domain

import dErrors "refroute/pkg/domain-errors"

// Scope partitions references into intra-unit ("local") and cross-unit
// ("global", inter-lab) routing. It is fixed at creation.
//
// Usage: construct via ParseScope at trust boundaries; direct casting bypasses validation.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
)

var validScopes = map[Scope]bool{
	ScopeLocal:  true,
	ScopeGlobal: true,
}

// ParseScope constructs a Scope from external input.
func ParseScope(s string) (Scope, error) {
	scope := Scope(s)
	if !validScopes[scope] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid scope: "+s)
	}
	return scope, nil
}

// AllScopes lists every partition, in a stable order.
func AllScopes() []Scope {
	return []Scope{ScopeLocal, ScopeGlobal}
}

func (s Scope) IsValid() bool {
	return validScopes[s]
}

// AllowsMultipleHolders is the single-vs-multi recipient convention: global
// references may be handed to several holders at once, local ones to exactly one.
func (s Scope) AllowsMultipleHolders() bool {
	return s == ScopeGlobal
}

// Code is the short partition code embedded in human-readable reference ids.
func (s Scope) Code() string {
	if s == ScopeGlobal {
		return "GLB"
	}
	return "LOC"
}

func (s Scope) String() string {
	return string(s)
}
