package movement

import (
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// Machine is the movement lifecycle.
var Machine = workflow.New(workflow.Definition[Status]{
	Name: "movement",
	Transitions: []workflow.Transition[Status]{
		{From: StatusDraft, Action: workflow.ActionSubmit, To: StatusSubmitted},
		{From: StatusSubmitted, Action: workflow.ActionApprove, To: StatusApproved},
		{From: StatusSubmitted, Action: workflow.ActionReject, To: StatusRejected},
		{From: StatusApproved, Action: workflow.ActionPost, To: StatusPosted},
		{From: StatusDraft, Action: workflow.ActionCancel, To: StatusCancelled},
		{From: StatusSubmitted, Action: workflow.ActionCancel, To: StatusCancelled},
		{From: StatusApproved, Action: workflow.ActionCancel, To: StatusCancelled},
	},
	Permissions: map[workflow.Action]string{
		workflow.ActionSubmit:  shared.PermMovementSubmit,
		workflow.ActionApprove: shared.PermMovementApprove,
		workflow.ActionReject:  shared.PermMovementApprove,
		workflow.ActionPost:    shared.PermMovementPost,
		workflow.ActionCancel:  shared.PermMovementCancel,
	},
	Terminal: []Status{StatusPosted, StatusRejected, StatusCancelled},
})
