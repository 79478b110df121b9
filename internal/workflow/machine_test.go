package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type docStatus string

const (
	statusDraft     docStatus = "DRAFT"
	statusSubmitted docStatus = "SUBMITTED"
	statusApproved  docStatus = "APPROVED"
	statusPosted    docStatus = "POSTED"
	statusRejected  docStatus = "REJECTED"
	statusCancelled docStatus = "CANCELLED"
)

func testMachine() *Machine[docStatus] {
	return New(Definition[docStatus]{
		Name: "doc",
		Transitions: []Transition[docStatus]{
			{From: statusDraft, Action: ActionSubmit, To: statusSubmitted},
			{From: statusSubmitted, Action: ActionApprove, To: statusApproved},
			{From: statusSubmitted, Action: ActionReject, To: statusRejected},
			{From: statusApproved, Action: ActionPost, To: statusPosted},
			{From: statusDraft, Action: ActionCancel, To: statusCancelled},
			{From: statusSubmitted, Action: ActionCancel, To: statusCancelled},
			{From: statusApproved, Action: ActionCancel, To: statusCancelled},
		},
		Permissions: map[Action]string{
			ActionSubmit:  "doc.submit",
			ActionApprove: "doc.approve",
			ActionReject:  "doc.approve",
			ActionPost:    "doc.post",
			ActionCancel:  "doc.cancel",
		},
		Terminal: []docStatus{statusPosted, statusRejected, statusCancelled},
	})
}

func TestFireFollowsTable(t *testing.T) {
	m := testMachine()
	actor := shared.Actor{ID: 1, Permissions: []string{"doc.submit", "doc.approve", "doc.post"}}

	next, err := m.Fire(actor, statusDraft, ActionSubmit)
	require.NoError(t, err)
	require.Equal(t, statusSubmitted, next)

	next, err = m.Fire(actor, next, ActionApprove)
	require.NoError(t, err)
	next, err = m.Fire(actor, next, ActionPost)
	require.NoError(t, err)
	require.Equal(t, statusPosted, next)

	_, err = m.Fire(actor, statusPosted, ActionPost)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestFireChecksPermissionBeforeState(t *testing.T) {
	m := testMachine()
	clerk := shared.Actor{ID: 2, Permissions: []string{"doc.submit"}}

	_, err := m.Fire(clerk, statusSubmitted, ActionApprove)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = m.Fire(clerk, statusPosted, ActionSubmit)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = m.Fire(clerk, statusDraft, Action("teleport"))
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestActionsAndTerminal(t *testing.T) {
	m := testMachine()
	require.Equal(t, []Action{ActionApprove, ActionCancel, ActionReject}, m.Actions(statusSubmitted))
	require.Empty(t, m.Actions(statusPosted))
	require.True(t, m.IsTerminal(statusCancelled))
	require.False(t, m.IsTerminal(statusDraft))
	require.True(t, m.Can(statusApproved, ActionPost))
	require.Equal(t, "doc.approve", m.Permission(ActionReject))
}

func TestNewRejectsInconsistentTables(t *testing.T) {
	require.Panics(t, func() {
		New(Definition[docStatus]{
			Name: "dup",
			Transitions: []Transition[docStatus]{
				{From: statusDraft, Action: ActionSubmit, To: statusSubmitted},
				{From: statusDraft, Action: ActionSubmit, To: statusApproved},
			},
			Permissions: map[Action]string{ActionSubmit: "x"},
		})
	})
	require.Panics(t, func() {
		New(Definition[docStatus]{
			Name:        "noperm",
			Transitions: []Transition[docStatus]{{From: statusDraft, Action: ActionSubmit, To: statusSubmitted}},
		})
	})
	require.Panics(t, func() {
		New(Definition[docStatus]{
			Name:        "terminal",
			Transitions: []Transition[docStatus]{{From: statusPosted, Action: ActionCancel, To: statusCancelled}},
			Permissions: map[Action]string{ActionCancel: "x"},
			Terminal:    []docStatus{statusPosted},
		})
	})
}
