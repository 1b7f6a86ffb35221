package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "rbac.roles.list", "") {
		return
	}

	roles, err := s.rbacStore.ListRoles(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "rbac.permissions.list", "") {
		return
	}

	permissions, err := s.rbacStore.ListPermissions(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, permissions)
}

func (s *Server) handleGetUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "rbac.users.roles.get", "") {
		return
	}

	if _, err := s.users.GetUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	roles, err := s.rbacStore.GetUserRoles(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httputil.WriteSuccess(w, UserRolesResponse{UserID: id, Roles: roles})
}

// handleGetUserPermissions returns a user's resolved permission set. Users
// may read their own; reading another user's requires the manage permission.
func (s *Server) handleGetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "rbac.users.permissions.get", id) {
		return
	}

	httputil.WriteSuccess(w, UserPermissionsResponse{
		UserID:      id,
		Permissions: s.resolver.GetUserPermissions(r.Context(), id),
	})
}

// handleListAuditEvents returns recent audit events, optionally filtered by
// actor or event type.
func (s *Server) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r, "rbac.audit.list", "") {
		return
	}
	if s.auditor == nil {
		httputil.WriteSuccess(w, []audit.Event{})
		return
	}

	events, err := s.auditor.List(r.Context(), audit.Filter{
		ActorID: r.URL.Query().Get("actor"),
		Type:    audit.EventType(r.URL.Query().Get("type")),
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteSuccess(w, events)
}

// handleAssignRole grants a role to a user by role name. The user's cached
// permission set is invalidated so the change takes effect immediately.
func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if !s.authorize(w, r, "rbac.users.roles.assign", "") {
		return
	}

	var req RoleAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	if _, err := s.users.GetUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.rbacStore.AssignRoleByName(r.Context(), id, req.Role); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.resolver.InvalidateUser(r.Context(), id)
	s.recordAudit(r, &audit.Event{
		Type:     audit.EventTypeRoleAssign,
		Status:   audit.EventStatusSuccess,
		ActorID:  middleware.GetAuthContext(r).UserID(),
		TargetID: id,
		Detail:   req.Role,
	})

	roles, err := s.rbacStore.GetUserRoles(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	httputil.WriteSuccess(w, UserRolesResponse{UserID: id, Roles: roles})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	roleName, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	if !s.authorize(w, r, "rbac.users.roles.revoke", "") {
		return
	}

	role, err := s.rbacStore.GetRoleByName(r.Context(), roleName)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := s.rbacStore.RevokeRole(r.Context(), id, role.ID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.resolver.InvalidateUser(r.Context(), id)
	s.recordAudit(r, &audit.Event{
		Type:     audit.EventTypeRoleRevoke,
		Status:   audit.EventStatusSuccess,
		ActorID:  middleware.GetAuthContext(r).UserID(),
		TargetID: id,
		Detail:   roleName,
	})
	httputil.WriteNoContent(w)
}
