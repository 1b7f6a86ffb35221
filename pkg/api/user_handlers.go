package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// handleMe returns the caller's own profile with the effective permission
// set. It requires a session but no permission.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if !s.authorize(w, r, "me", "") {
		return
	}

	resp := newUserResponse(&authCtx.User.User)
	resp.Permissions = authCtx.User.Permissions
	httputil.WriteSuccess(w, resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "users.list", "") {
		return
	}

	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	// Permission sets are only attached to single-user reads; resolving
	// them per row would turn the listing into N extra lookups.
	resp := make([]UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "users.get", id) {
		return
	}

	user, err := s.users.GetUser(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := newUserResponse(user)
	if s.canSeePermissions(r, id) {
		resp.Permissions = s.resolver.GetUserPermissions(r.Context(), id)
	}
	httputil.WriteSuccess(w, resp)
}

// canSeePermissions reports whether the caller may see a user's permission
// set: always their own, others' only when they can manage users.
func (s *Server) canSeePermissions(r *http.Request, userID string) bool {
	authCtx := middleware.GetAuthContext(r)
	if authCtx.UserID() == userID {
		return true
	}
	return authCtx.HasPermission(rbac.PermissionName(rbac.ResourceUsers, rbac.ActionWrite))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "users.create", "") {
		return
	}

	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	user := &auth.User{Email: req.Email, Name: req.Name}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		s.writeStoreError(w, err)
		return
	}

	if s.defaultRole != "" {
		if err := s.rbacStore.AssignRoleByName(r.Context(), user.ID, s.defaultRole); err != nil {
			// The user exists either way; surface the missing grant in logs.
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id": user.ID,
				"role":    s.defaultRole,
			}).Warn("failed to assign default role to new user")
		} else {
			s.resolver.InvalidateUser(r.Context(), user.ID)
		}
	}
	s.recordAudit(r, &audit.Event{
		Type:     audit.EventTypeUserCreate,
		Status:   audit.EventStatusSuccess,
		ActorID:  middleware.GetAuthContext(r).UserID(),
		TargetID: user.ID,
	})
	httputil.WriteCreated(w, newUserResponse(user))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "users.update", id) {
		return
	}

	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == nil && req.Name == nil {
		httputil.WriteValidationError(w, "at least one of email or name is required")
		return
	}

	user, err := s.users.UpdateUser(r.Context(), id, req.Email, req.Name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, newUserResponse(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "users.delete", "") {
		return
	}

	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.resolver.InvalidateUser(r.Context(), id)
	s.recordAudit(r, &audit.Event{
		Type:     audit.EventTypeUserDelete,
		Status:   audit.EventStatusSuccess,
		ActorID:  middleware.GetAuthContext(r).UserID(),
		TargetID: id,
	})
	httputil.WriteNoContent(w)
}
