// Package auth holds the identity types produced by the external
// authentication provider and the session verification boundary. Credential
// issuance (signup, login, token minting) happens outside this service; we
// only read the user and session rows it maintains.
package auth

import "time"

// User represents an identity record created by the authentication provider.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name"`
	Image         *string   `json:"image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Session represents an authenticated session row.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"` // never exposed in responses
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserWithPermissions is a user extended with their effective permission names.
type UserWithPermissions struct {
	User
	Permissions []string `json:"permissions"`
}

// AuthContext holds the resolved identity for one request. A nil User means
// the request is anonymous.
type AuthContext struct {
	User    *UserWithPermissions
	Session *Session
}

// UserID returns the authenticated user id, or "" for anonymous contexts.
func (ac *AuthContext) UserID() string {
	if ac == nil || ac.User == nil {
		return ""
	}
	return ac.User.ID
}

// HasPermission reports whether the resolved identity carries the named
// permission. Anonymous contexts hold no permissions.
func (ac *AuthContext) HasPermission(name string) bool {
	if ac == nil || ac.User == nil {
		return false
	}
	for _, p := range ac.User.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
