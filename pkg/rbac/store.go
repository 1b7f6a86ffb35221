package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles RBAC data persistence. Catalog and join-table inserts use
// skip-on-conflict semantics so seeding and role assignment are idempotent
// and safe to race, relying purely on the unique constraints.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePermission inserts a permission, skipping silently when a permission
// with the same name already exists.
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO permissions (id, name, description, resource, action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.Description, p.Resource, p.Action, now, now)
	if err != nil {
		return fmt.Errorf("failed to create permission %s: %w", p.Name, err)
	}
	return nil
}

// CreateRole inserts a role, skipping silently when a role with the same name
// already exists.
func (s *Store) CreateRole(ctx context.Context, r *Role) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO roles (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.Description, now, now)
	if err != nil {
		return fmt.Errorf("failed to create role %s: %w", r.Name, err)
	}
	return nil
}

// ListPermissions returns the full permission table.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	query := `
		SELECT id, name, description, resource, action, created_at, updated_at
		FROM permissions
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []Permission
	for rows.Next() {
		var p Permission
		var description sql.NullString
		err := rows.Scan(&p.ID, &p.Name, &description, &p.Resource, &p.Action, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Description = description.String
		permissions = append(permissions, p)
	}

	return permissions, rows.Err()
}

// ListRoles returns the full role table.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		var description sql.NullString
		err := rows.Scan(&r.ID, &r.Name, &description, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		r.Description = description.String
		roles = append(roles, r)
	}

	return roles, rows.Err()
}

// GetRoleByName retrieves a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	var r Role
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, name).Scan(&r.ID, &r.Name, &description, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", name, err)
	}
	r.Description = description.String
	return &r, nil
}

// GrantPermission wires a permission to a role. Duplicate grants are no-ops.
func (s *Store) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	query := `
		INSERT INTO role_permissions (id, role_id, permission_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), roleID, permissionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// AssignRole adds a user to a role. Duplicate assignments are no-ops.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	query := `
		INSERT INTO user_roles (id, user_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), userID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// AssignRoleByName resolves a role name and assigns it to the user.
func (s *Store) AssignRoleByName(ctx context.Context, userID, roleName string) error {
	role, err := s.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return s.AssignRole(ctx, userID, role.ID)
}

// RevokeRole removes a user's membership in a role. Revoking a role the user
// does not hold is a no-op.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// GetUserRoles returns the roles a user is a member of.
func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		var description sql.NullString
		err := rows.Scan(&r.ID, &r.Name, &description, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		r.Description = description.String
		roles = append(roles, r)
	}

	return roles, rows.Err()
}

// DeleteRole removes a role. Its user memberships and permission grants
// cascade via foreign keys.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}
	return nil
}

// UserPermissionNames returns the raw permission names reachable through any
// of the user's roles. A permission held via two roles appears twice; callers
// deduplicate.
func (s *Store) UserPermissionNames(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		JOIN roles r ON rp.role_id = r.id
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan permission name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// UserHasPermission reports whether any of the user's roles grants the named
// permission, as a single existence query.
func (s *Store) UserHasPermission(ctx context.Context, userID, permission string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM permissions p
			JOIN role_permissions rp ON p.id = rp.permission_id
			JOIN roles r ON rp.role_id = r.id
			JOIN user_roles ur ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND p.name = $2
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, permission).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return exists, nil
}
