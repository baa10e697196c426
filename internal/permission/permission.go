// Package permission evaluates the fixed role capability matrix of the
// reference engine. Roles and actions are domain-fixed; deployments may add
// policy rows but not new actions.
package permission

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	id "refroute/pkg/domain"
)

// Action is a capability checked once per external request.
type Action string

const (
	ActionCreate        Action = "create"
	ActionView          Action = "view"
	ActionMove          Action = "move"
	ActionRequestReopen Action = "request_reopen"
	ActionResolveReopen Action = "resolve_reopen"
	ActionBulk          Action = "bulk"
	ActionDashboard     Action = "dashboard"
	ActionViewAll       Action = "view_all"
	ActionOverride      Action = "override"
	ActionReplay        Action = "replay"
	ActionRepair        Action = "repair"
)

// Evaluator answers whether a role may perform action within scope.
type Evaluator interface {
	CanActOn(role string, scope id.Scope, action Action) bool
	// Grant resolves every action of role within scope in one evaluation.
	Grant(role string, scope id.Scope) Grant
}

// Grant is what one role may do within one scope. Services resolve it once
// per request and consult it for the secondary capabilities.
type Grant struct {
	all     bool
	actions map[Action]bool
}

// NewGrant holds actions; "*" holds every action.
func NewGrant(actions ...Action) Grant {
	g := Grant{actions: make(map[Action]bool, len(actions))}
	for _, a := range actions {
		if a == "*" {
			g.all = true
		}
		g.actions[a] = true
	}
	return g
}

func (g Grant) Has(action Action) bool { return g.all || g.actions[action] }

//go:embed model.conf
var modelText string

// defaultPolicy grants every role its baseline. Supervisors inherit officers.
var defaultPolicy = [][]string{
	{"p", "admin", "*", "*"},
	{"p", "officer", "*", string(ActionCreate)},
	{"p", "officer", "*", string(ActionView)},
	{"p", "officer", "*", string(ActionMove)},
	{"p", "officer", "*", string(ActionRequestReopen)},
	{"p", "officer", "*", string(ActionBulk)},
	{"p", "officer", "*", string(ActionDashboard)},
	{"p", "supervisor", "*", string(ActionResolveReopen)},
	{"p", "supervisor", "*", string(ActionViewAll)},
	{"p", "supervisor", "*", string(ActionOverride)},
	{"p", "supervisor", "*", string(ActionReplay)},
	{"g", "supervisor", "officer"},
}

// CasbinEvaluator enforces the matrix with an in-memory casbin enforcer.
type CasbinEvaluator struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
	logger   *slog.Logger
}

// NewCasbinEvaluator loads the built-in model and policy plus extra rows in
// casbin CSV form ("p, clerk, local, view" or "g, auditor, officer").
func NewCasbinEvaluator(extra []string, logger *slog.Logger) (*CasbinEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("permission: parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("permission: init enforcer: %w", err)
	}

	rows := append([][]string{}, defaultPolicy...)
	for _, line := range extra {
		row, err := parsePolicyLine(line)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	for _, row := range rows {
		if err := addRow(enf, row); err != nil {
			return nil, err
		}
	}
	return &CasbinEvaluator{enforcer: enf, logger: logger}, nil
}

func (e *CasbinEvaluator) CanActOn(role string, scope id.Scope, action Action) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ok, err := e.enforcer.Enforce(role, string(scope), string(action))
	if err != nil {
		e.logger.Error("permission enforce failed", "role", role, "scope", scope, "action", action, "error", err)
		return false
	}
	return ok
}

func (e *CasbinEvaluator) Grant(role string, scope id.Scope) Grant {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules, err := e.enforcer.GetImplicitPermissionsForUser(role)
	if err != nil {
		e.logger.Error("permission grant failed", "role", role, "scope", scope, "error", err)
		return Grant{}
	}
	actions := make([]Action, 0, len(rules))
	for _, rule := range rules {
		if len(rule) == 3 && (rule[1] == "*" || rule[1] == string(scope)) {
			actions = append(actions, Action(rule[2]))
		}
	}
	return NewGrant(actions...)
}

func addRow(enf *casbin.Enforcer, row []string) error {
	var err error
	switch row[0] {
	case "p":
		if len(row) != 4 {
			return fmt.Errorf("permission: policy row needs role, scope, action: %v", row)
		}
		_, err = enf.AddPolicy(row[1], row[2], row[3])
	case "g":
		if len(row) != 3 {
			return fmt.Errorf("permission: grouping row needs role and parent: %v", row)
		}
		_, err = enf.AddGroupingPolicy(row[1], row[2])
	default:
		return fmt.Errorf("permission: unknown row type %q", row[0])
	}
	if err != nil {
		return fmt.Errorf("permission: add %v: %w", row, err)
	}
	return nil
}

func parsePolicyLine(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	parts := strings.Split(line, ",")
	row := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("permission: empty field in %q", line)
		}
		row = append(row, p)
	}
	return row, nil
}

// Static is a fixed allow-list evaluator for tests and tools.
type Static map[string][]Action

func (s Static) CanActOn(role string, scope id.Scope, action Action) bool {
	return s.Grant(role, scope).Has(action)
}

func (s Static) Grant(role string, _ id.Scope) Grant {
	return NewGrant(s[role]...)
}
