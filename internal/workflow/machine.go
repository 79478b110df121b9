// Package workflow implements table-driven document state machines. Each
// document family declares its statuses as a closed string type and its
// transitions as a table; the machine answers "may this actor perform this
// action from this state, and where does it lead".
package workflow

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Action names a requested transition.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionPost     Action = "post"
	ActionConvert  Action = "convert"
	ActionSend     Action = "send"
	ActionStart    Action = "start"
	ActionReceive  Action = "receive"
	ActionClose    Action = "close"
	ActionComplete Action = "complete"
	ActionRecount  Action = "recount"
)

// Transition is one edge of a state machine.
type Transition[S ~string] struct {
	From   S
	Action Action
	To     S
}

type edge[S ~string] struct {
	from   S
	action Action
}

// Machine is an immutable transition table with per-action permissions.
type Machine[S ~string] struct {
	name        string
	edges       map[edge[S]]S
	permissions map[Action]string
	terminal    map[S]struct{}
}

// Definition declares a machine.
type Definition[S ~string] struct {
	Name        string
	Transitions []Transition[S]
	// Permissions maps every action used in Transitions to the capability the
	// actor must hold. An action without an entry is a programming error.
	Permissions map[Action]string
	Terminal    []S
}

// New builds a machine and panics on an inconsistent table: duplicate edges,
// actions without a permission, or edges leaving a terminal state.
func New[S ~string](def Definition[S]) *Machine[S] {
	if err := validate(def); err != nil {
		panic(err)
	}
	m := &Machine[S]{
		name:        def.Name,
		edges:       make(map[edge[S]]S, len(def.Transitions)),
		permissions: make(map[Action]string, len(def.Permissions)),
		terminal:    make(map[S]struct{}, len(def.Terminal)),
	}
	for _, t := range def.Transitions {
		m.edges[edge[S]{from: t.From, action: t.Action}] = t.To
	}
	for action, perm := range def.Permissions {
		m.permissions[action] = perm
	}
	for _, s := range def.Terminal {
		m.terminal[s] = struct{}{}
	}
	return m
}

func validate[S ~string](def Definition[S]) error {
	if def.Name == "" {
		return fmt.Errorf("workflow: machine name required")
	}
	terminal := make(map[S]struct{}, len(def.Terminal))
	for _, s := range def.Terminal {
		terminal[s] = struct{}{}
	}
	seen := make(map[edge[S]]struct{}, len(def.Transitions))
	for _, t := range def.Transitions {
		e := edge[S]{from: t.From, action: t.Action}
		if _, dup := seen[e]; dup {
			return fmt.Errorf("workflow: %s: duplicate transition %s --%s-->", def.Name, t.From, t.Action)
		}
		seen[e] = struct{}{}
		if _, ok := def.Permissions[t.Action]; !ok {
			return fmt.Errorf("workflow: %s: action %s has no permission", def.Name, t.Action)
		}
		if _, ok := terminal[t.From]; ok {
			return fmt.Errorf("workflow: %s: terminal state %s has outgoing %s", def.Name, t.From, t.Action)
		}
	}
	return nil
}

// Name returns the machine's document family name.
func (m *Machine[S]) Name() string {
	return m.name
}

// Permission returns the capability required for action.
func (m *Machine[S]) Permission(action Action) string {
	return m.permissions[action]
}

// Fire checks whether actor may perform action on a document in state from
// and returns the resulting state. It is a pure predicate: the permission is
// checked first, then the edge.
func (m *Machine[S]) Fire(actor shared.Actor, from S, action Action) (S, error) {
	perm, known := m.permissions[action]
	if !known {
		return from, fmt.Errorf("%w: %s does not support %s", shared.ErrInvalidTransition, m.name, action)
	}
	if !actor.Can(perm) {
		return from, fmt.Errorf("%w: %s %s requires %s", shared.ErrPermissionDenied, m.name, action, perm)
	}
	to, ok := m.edges[edge[S]{from: from, action: action}]
	if !ok {
		return from, fmt.Errorf("%w: %s cannot %s from %s", shared.ErrInvalidTransition, m.name, action, from)
	}
	return to, nil
}

// Can reports whether the table has an edge for (from, action), ignoring permissions.
func (m *Machine[S]) Can(from S, action Action) bool {
	_, ok := m.edges[edge[S]{from: from, action: action}]
	return ok
}

// Actions lists the actions available from state, sorted.
func (m *Machine[S]) Actions(from S) []Action {
	var actions []Action
	for e := range m.edges {
		if e.from == from {
			actions = append(actions, e.action)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// IsTerminal reports whether no action leaves state.
func (m *Machine[S]) IsTerminal(state S) bool {
	_, ok := m.terminal[state]
	return ok
}
