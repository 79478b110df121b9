package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Store reads and writes roles in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadGrants implements Loader. The primary role is the one with the lowest id.
func (s *Store) LoadGrants(ctx context.Context, userID int64) (Grants, error) {
	var grants Grants
	err := s.pool.QueryRow(ctx, `SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 ORDER BY r.id LIMIT 1`, userID).Scan(&grants.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Grants{}, fmt.Errorf("%w: user %d has no role", shared.ErrUnauthorized, userID)
	}
	if err != nil {
		return Grants{}, db.TranslateError(err)
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return Grants{}, db.TranslateError(err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Grants{}, db.TranslateError(err)
	}
	grants.Permissions = perms
	return grants, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var r Role
		err := row.Scan(&r.ID, &r.Name, &r.Description)
		return r, err
	})
}

// ListPermissions returns all permissions ordered by name.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.Name, &p.Description)
		return p, err
	})
}

// EnsureRole upserts a role and replaces its permission set with perms,
// creating missing permission rows.
func (s *Store) EnsureRole(ctx context.Context, name, description string, perms []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	var role Role
	err := db.WithTx(ctx, s.pool, db.DefaultProfiles().Interactive, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, name, strings.TrimSpace(description)).Scan(&role.ID, &role.Name, &role.Description)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		for _, perm := range normalizePermissions(perms) {
			var permID int64
			err := tx.QueryRow(ctx, `INSERT INTO permissions (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, perm).Scan(&permID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, role.ID, permID); err != nil {
				return err
			}
		}
		return nil
	})
	return role, err
}

// AssignRole assigns a role to the given user.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return db.TranslateError(err)
}

// RemoveRole removes a role from a user.
func (s *Store) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return db.TranslateError(err)
}
