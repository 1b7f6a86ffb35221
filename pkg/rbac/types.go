package rbac

import (
	"time"
)

// Resource names used by the canonical permission catalog
const (
	ResourceUsers = "users"
	ResourcePosts = "posts"
)

// Action names used by the canonical permission catalog
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// Permission represents an atomic capability. Name is globally unique, always
// of the form "<resource>.<action>", and is the sole key used for
// authorization checks.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionName builds the canonical "<resource>.<action>" name.
func PermissionName(resource, action string) string {
	return resource + "." + action
}

// Role represents a named bundle of permissions assignable to users. There is
// no inheritance between roles; a user's effective permissions are the flat
// union across their roles.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole is a user-role membership. Unique per (user, role); duplicate
// assignment is a no-op.
type UserRole struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission is a role-permission grant. Unique per (role, permission);
// duplicate grants are no-ops.
type RolePermission struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Built-in role names installed by the seeder.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleUser   = "user"
)

// PermissionCatalog returns the canonical permission catalog installed by the
// seeder. IDs and timestamps are assigned at insert time.
func PermissionCatalog() []Permission {
	return []Permission{
		{Name: "users.read", Description: "Read users", Resource: ResourceUsers, Action: ActionRead},
		{Name: "users.write", Description: "Create and update users", Resource: ResourceUsers, Action: ActionWrite},
		{Name: "users.delete", Description: "Delete users", Resource: ResourceUsers, Action: ActionDelete},
		{Name: "posts.read", Description: "Read posts", Resource: ResourcePosts, Action: ActionRead},
		{Name: "posts.write", Description: "Create and update posts", Resource: ResourcePosts, Action: ActionWrite},
		{Name: "posts.delete", Description: "Delete posts", Resource: ResourcePosts, Action: ActionDelete},
	}
}

// RoleCatalog returns the canonical roles installed by the seeder.
func RoleCatalog() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "Administrator with full access"},
		{Name: RoleUser, Description: "Regular user with limited access"},
		{Name: RoleEditor, Description: "Can manage posts"},
	}
}

// PermissionSelector matches permissions by attribute. An empty Resource or
// Action matches any value.
type PermissionSelector struct {
	Resource string `yaml:"resource" json:"resource,omitempty"`
	Action   string `yaml:"action" json:"action,omitempty"`
}

// Matches reports whether the selector matches the permission.
func (s PermissionSelector) Matches(p Permission) bool {
	if s.Resource != "" && s.Resource != p.Resource {
		return false
	}
	if s.Action != "" && s.Action != p.Action {
		return false
	}
	return true
}

// GrantRule maps a role name to the permissions it receives, expressed as
// selectors over permission attributes. A permission is granted when any
// selector matches.
type GrantRule struct {
	Role      string
	Selectors []PermissionSelector
}

// GrantPolicy returns the declarative grant policy applied by the seeder:
// admin holds everything, user holds the read permissions, editor holds all
// post permissions plus users.read.
func GrantPolicy() []GrantRule {
	return []GrantRule{
		{
			Role:      RoleAdmin,
			Selectors: []PermissionSelector{{}},
		},
		{
			Role:      RoleUser,
			Selectors: []PermissionSelector{{Action: ActionRead}},
		},
		{
			Role: RoleEditor,
			Selectors: []PermissionSelector{
				{Resource: ResourcePosts},
				{Resource: ResourceUsers, Action: ActionRead},
			},
		},
	}
}

// GrantedPermissions expands a rule against a permission set.
func (r GrantRule) GrantedPermissions(all []Permission) []Permission {
	var granted []Permission
	for _, p := range all {
		for _, sel := range r.Selectors {
			if sel.Matches(p) {
				granted = append(granted, p)
				break
			}
		}
	}
	return granted
}
