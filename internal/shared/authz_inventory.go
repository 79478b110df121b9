package shared

// Procurement permissions.
const (
	PermPRCreate  = "procurement.pr.create"
	PermPRSubmit  = "procurement.pr.submit"
	PermPRApprove = "procurement.pr.approve"
	PermPRCancel  = "procurement.pr.cancel"
	PermPRConvert = "procurement.pr.convert"

	PermPOCreate  = "procurement.po.create"
	PermPOSubmit  = "procurement.po.submit"
	PermPOApprove = "procurement.po.approve"
	PermPOSend    = "procurement.po.send"
	PermPOCancel  = "procurement.po.cancel"
	PermPOClose   = "procurement.po.close"

	PermGRNCreate = "procurement.grn.create"
	PermGRNPost   = "procurement.grn.post"
	PermGRNCancel = "procurement.grn.cancel"
)

// Inventory permissions.
const (
	PermInventoryView    = "inventory.view"
	PermInventoryReserve = "inventory.reserve"

	PermMovementCreate  = "inventory.movement.create"
	PermMovementSubmit  = "inventory.movement.submit"
	PermMovementApprove = "inventory.movement.approve"
	PermMovementPost    = "inventory.movement.post"
	PermMovementCancel  = "inventory.movement.cancel"

	PermStockTakeCreate  = "inventory.stocktake.create"
	PermStockTakeCount   = "inventory.stocktake.count"
	PermStockTakeApprove = "inventory.stocktake.approve"
	PermStockTakeCancel  = "inventory.stocktake.cancel"
)

// ProcurementScopes lists every procurement permission.
func ProcurementScopes() []string {
	return []string{
		PermPRCreate, PermPRSubmit, PermPRApprove, PermPRCancel, PermPRConvert,
		PermPOCreate, PermPOSubmit, PermPOApprove, PermPOSend, PermPOCancel, PermPOClose,
		PermGRNCreate, PermGRNPost, PermGRNCancel,
	}
}

// InventoryScopes lists every inventory permission.
func InventoryScopes() []string {
	return []string{
		PermInventoryView, PermInventoryReserve,
		PermMovementCreate, PermMovementSubmit, PermMovementApprove, PermMovementPost, PermMovementCancel,
		PermStockTakeCreate, PermStockTakeCount, PermStockTakeApprove, PermStockTakeCancel,
	}
}

// MovementPostingScopes are the permissions needed to drive a movement from
// draft to posted in one call.
func MovementPostingScopes() []string {
	return []string{PermMovementCreate, PermMovementSubmit, PermMovementApprove, PermMovementPost}
}
