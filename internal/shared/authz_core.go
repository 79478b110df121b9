package shared

// Core platform permissions.
const (
	PermMasterDataView = "masterdata.view"
	PermMasterDataEdit = "masterdata.edit"

	PermAuditView = "audit.view"

	// PermRBACManage allows dropping cached grants after a role change.
	PermRBACManage = "rbac.manage"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermMasterDataView,
		PermMasterDataEdit,
		PermAuditView,
		PermRBACManage,
	}
}
