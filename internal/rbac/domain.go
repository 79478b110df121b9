package rbac

import (
	"context"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Grants is what a user may do: the name of its primary role and the union of
// the permissions of every role it holds.
type Grants struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Loader reads grants from the source of truth.
type Loader interface {
	LoadGrants(ctx context.Context, userID int64) (Grants, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, userID int64) (Grants, error)

// LoadGrants implements Loader.
func (f LoaderFunc) LoadGrants(ctx context.Context, userID int64) (Grants, error) {
	return f(ctx, userID)
}

// RoleDefinition is a role together with the permissions it grants.
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles returns the roles a fresh installation is seeded with.
func DefaultRoles() []RoleDefinition {
	all := append(append(append([]string{}, shared.CoreScopes()...), shared.ProcurementScopes()...), shared.InventoryScopes()...)
	return []RoleDefinition{
		{Name: "admin", Description: "Full access", Permissions: all},
		{Name: "purchasing", Description: "Requests, orders and receipts", Permissions: append([]string{shared.PermMasterDataView, shared.PermInventoryView}, shared.ProcurementScopes()...)},
		{Name: "warehouse", Description: "Stock movements and counts", Permissions: append([]string{shared.PermMasterDataView, shared.PermGRNCreate, shared.PermGRNPost}, shared.InventoryScopes()...)},
		{Name: "auditor", Description: "Read-only audit access", Permissions: []string{shared.PermAuditView, shared.PermInventoryView, shared.PermMasterDataView}},
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}
