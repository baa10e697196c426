package models

import (
	"strings"

	dErrors "refroute/pkg/domain-errors"
)

// Status is the lifecycle state of a reference.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "InProgress"
	StatusClosed     Status = "Closed"
	StatusReopened   Status = "Reopened"
)

// transitions lists every legal status change. Closed→Reopened is only taken
// by an approved reopen request.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusInProgress, StatusClosed},
	StatusClosed:     {StatusReopened},
	StatusReopened:   {StatusInProgress, StatusClosed},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether the status ends routing until a reopen.
func (s Status) IsTerminal() bool { return s == StatusClosed }

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus accepts the canonical spelling case-insensitively.
func ParseStatus(raw string) (Status, error) {
	for s := range transitions {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+raw)
}

// ActiveStatuses are the non-terminal statuses, i.e. the "open" set.
func ActiveStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusReopened}
}

// Priority of a reference.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

// ParsePriority accepts the canonical spelling case-insensitively.
func ParsePriority(raw string) (Priority, error) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if strings.EqualFold(string(p), strings.TrimSpace(raw)) {
			return p, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown priority: "+raw)
}

// MovementAction classifies a ledger entry.
type MovementAction string

const (
	ActionCreated   MovementAction = "created"
	ActionForwarded MovementAction = "forwarded"
	ActionClosed    MovementAction = "closed"
	ActionReopened  MovementAction = "reopened"
)

// ActionFor derives the ledger action of a hand-off resulting in status.
func ActionFor(status Status) MovementAction {
	switch status {
	case StatusClosed:
		return ActionClosed
	case StatusReopened:
		return ActionReopened
	default:
		return ActionForwarded
	}
}
