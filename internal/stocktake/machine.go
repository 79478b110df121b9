package stocktake

import (
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// Machine is the stock take lifecycle. Counting happens in IN_PROGRESS; a
// completed count may be reopened with recount before approval.
var Machine = workflow.New(workflow.Definition[Status]{
	Name: "stock take",
	Transitions: []workflow.Transition[Status]{
		{From: StatusDraft, Action: workflow.ActionStart, To: StatusInProgress},
		{From: StatusInProgress, Action: workflow.ActionComplete, To: StatusCompleted},
		{From: StatusCompleted, Action: workflow.ActionRecount, To: StatusInProgress},
		{From: StatusCompleted, Action: workflow.ActionApprove, To: StatusApproved},
		{From: StatusDraft, Action: workflow.ActionCancel, To: StatusCancelled},
		{From: StatusInProgress, Action: workflow.ActionCancel, To: StatusCancelled},
		{From: StatusCompleted, Action: workflow.ActionCancel, To: StatusCancelled},
	},
	Permissions: map[workflow.Action]string{
		workflow.ActionStart:    shared.PermStockTakeCount,
		workflow.ActionComplete: shared.PermStockTakeCount,
		workflow.ActionRecount:  shared.PermStockTakeCount,
		workflow.ActionApprove:  shared.PermStockTakeApprove,
		workflow.ActionCancel:   shared.PermStockTakeCancel,
	},
	Terminal: []Status{StatusApproved, StatusCancelled},
})
