package procurement

import (
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/workflow"
)

// PRMachine is the purchase request lifecycle. A converted request may be
// converted again for its remaining lines.
var PRMachine = workflow.New(workflow.Definition[PRStatus]{
	Name: "purchase request",
	Transitions: []workflow.Transition[PRStatus]{
		{From: PRStatusDraft, Action: workflow.ActionSubmit, To: PRStatusSubmitted},
		{From: PRStatusSubmitted, Action: workflow.ActionApprove, To: PRStatusApproved},
		{From: PRStatusSubmitted, Action: workflow.ActionReject, To: PRStatusRejected},
		{From: PRStatusApproved, Action: workflow.ActionConvert, To: PRStatusConverted},
		{From: PRStatusConverted, Action: workflow.ActionConvert, To: PRStatusConverted},
		{From: PRStatusDraft, Action: workflow.ActionCancel, To: PRStatusCancelled},
		{From: PRStatusSubmitted, Action: workflow.ActionCancel, To: PRStatusCancelled},
		{From: PRStatusApproved, Action: workflow.ActionCancel, To: PRStatusCancelled},
	},
	Permissions: map[workflow.Action]string{
		workflow.ActionSubmit:  shared.PermPRSubmit,
		workflow.ActionApprove: shared.PermPRApprove,
		workflow.ActionReject:  shared.PermPRApprove,
		workflow.ActionConvert: shared.PermPRConvert,
		workflow.ActionCancel:  shared.PermPRCancel,
	},
	Terminal: []PRStatus{PRStatusRejected, PRStatusCancelled},
})

// POMachine is the purchase order lifecycle. Receipt states are derived from
// posted goods receipts by DerivePOStatus, not fired by users.
var POMachine = workflow.New(workflow.Definition[POStatus]{
	Name: "purchase order",
	Transitions: []workflow.Transition[POStatus]{
		{From: POStatusDraft, Action: workflow.ActionSubmit, To: POStatusSubmitted},
		{From: POStatusSubmitted, Action: workflow.ActionApprove, To: POStatusApproved},
		{From: POStatusSubmitted, Action: workflow.ActionReject, To: POStatusRejected},
		{From: POStatusApproved, Action: workflow.ActionSend, To: POStatusSent},
		{From: POStatusSent, Action: workflow.ActionStart, To: POStatusInProgress},
		{From: POStatusFullyReceived, Action: workflow.ActionClose, To: POStatusClosed},
		{From: POStatusDraft, Action: workflow.ActionCancel, To: POStatusCancelled},
		{From: POStatusSubmitted, Action: workflow.ActionCancel, To: POStatusCancelled},
		{From: POStatusApproved, Action: workflow.ActionCancel, To: POStatusCancelled},
		{From: POStatusSent, Action: workflow.ActionCancel, To: POStatusCancelled},
	},
	Permissions: map[workflow.Action]string{
		workflow.ActionSubmit:  shared.PermPOSubmit,
		workflow.ActionApprove: shared.PermPOApprove,
		workflow.ActionReject:  shared.PermPOApprove,
		workflow.ActionSend:    shared.PermPOSend,
		workflow.ActionStart:   shared.PermPOSend,
		workflow.ActionClose:   shared.PermPOClose,
		workflow.ActionCancel:  shared.PermPOCancel,
	},
	Terminal: []POStatus{POStatusClosed, POStatusRejected, POStatusCancelled},
})

// GRNMachine is the goods receipt lifecycle.
var GRNMachine = workflow.New(workflow.Definition[GRNStatus]{
	Name: "goods receipt",
	Transitions: []workflow.Transition[GRNStatus]{
		{From: GRNStatusDraft, Action: workflow.ActionPost, To: GRNStatusPosted},
		{From: GRNStatusDraft, Action: workflow.ActionCancel, To: GRNStatusCancelled},
	},
	Permissions: map[workflow.Action]string{
		workflow.ActionPost:   shared.PermGRNPost,
		workflow.ActionCancel: shared.PermGRNCancel,
	},
	Terminal: []GRNStatus{GRNStatusPosted, GRNStatusCancelled},
})
