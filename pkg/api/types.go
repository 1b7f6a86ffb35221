package api

import (
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UpdateUserRequest is the payload for updating a user. Nil fields are left
// unchanged.
type UpdateUserRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

// UserResponse is the API shape of a user. Permissions are included only
// when the caller is the user or may manage users; otherwise the field is
// omitted entirely.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name"`
	Image         *string   `json:"image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Permissions   []string  `json:"permissions,omitempty"`
}

func newUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		Image:         u.Image,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// CreatePostRequest is the payload for creating a post.
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdatePostRequest is the payload for updating a post. Nil fields are left
// unchanged.
type UpdatePostRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// RoleAssignmentRequest names the role to assign to or revoke from a user.
type RoleAssignmentRequest struct {
	Role string `json:"role"`
}

// UserRolesResponse lists the roles held by a user.
type UserRolesResponse struct {
	UserID string      `json:"user_id"`
	Roles  []rbac.Role `json:"roles"`
}

// UserPermissionsResponse lists a user's effective permission names.
type UserPermissionsResponse struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}
