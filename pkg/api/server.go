// Package api exposes the HTTP operation layer: user and post CRUD, the
// caller's own profile, and role administration, each gated by the operation
// policy table.
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/content"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// Server wires the API handlers to their stores and the policy table.
type Server struct {
	users     *auth.UserStore
	posts     *content.PostStore
	rbacStore *rbac.Store
	resolver  *rbac.Resolver
	policy    *rbac.PolicyTable
	auditor   *audit.Store
	logger    *observability.Logger
	metrics   *observability.Metrics

	// defaultRole, when non-empty, is assigned to newly created users.
	defaultRole string
}

// NewServer creates the API server. Metrics may be nil.
func NewServer(
	users *auth.UserStore,
	posts *content.PostStore,
	rbacStore *rbac.Store,
	resolver *rbac.Resolver,
	policy *rbac.PolicyTable,
	auditor *audit.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
	defaultRole string,
) *Server {
	return &Server{
		users:       users,
		posts:       posts,
		rbacStore:   rbacStore,
		resolver:    resolver,
		policy:      policy,
		auditor:     auditor,
		logger:      logger,
		metrics:     metrics,
		defaultRole: defaultRole,
	}
}

// Routes registers all API routes on a router wrapped with the given
// middleware chain.
func (s *Server) Routes(contextBuilder *middleware.ContextBuilder) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(s.metricsMiddleware)
	router.Use(contextBuilder.Middleware)

	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)

	v1.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	v1.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	v1.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPatch)
	v1.HandleFunc("/users/{id}", s.handleDeleteUser).Methods(http.MethodDelete)

	v1.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	v1.HandleFunc("/posts", s.handleCreatePost).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{id}", s.handleGetPost).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}", s.handleUpdatePost).Methods(http.MethodPatch)
	v1.HandleFunc("/posts/{id}", s.handleDeletePost).Methods(http.MethodDelete)

	v1.HandleFunc("/rbac/roles", s.handleListRoles).Methods(http.MethodGet)
	v1.HandleFunc("/rbac/permissions", s.handleListPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/rbac/users/{id}/roles", s.handleGetUserRoles).Methods(http.MethodGet)
	v1.HandleFunc("/rbac/users/{id}/roles", s.handleAssignRole).Methods(http.MethodPost)
	v1.HandleFunc("/rbac/users/{id}/roles/{role}", s.handleRevokeRole).Methods(http.MethodDelete)
	v1.HandleFunc("/rbac/users/{id}/permissions", s.handleGetUserPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/rbac/audit", s.handleListAuditEvents).Methods(http.MethodGet)

	return router
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

// authorize runs the policy table for an operation and writes the mapped
// error response on failure. ownerID may be empty for operations without an
// owned target.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, operation, ownerID string) bool {
	authCtx := middleware.GetAuthContext(r)
	if err := s.policy.Authorize(r.Context(), operation, authCtx.UserID(), ownerID); err != nil {
		var denied *rbac.PermissionDeniedError
		if errors.As(err, &denied) {
			s.recordAudit(r, &audit.Event{
				Type:       audit.EventTypeAccessDenied,
				Status:     audit.EventStatusDenied,
				ActorID:    authCtx.UserID(),
				Operation:  operation,
				Permission: denied.Permission,
			})
		}
		s.writeAuthzError(w, err)
		return false
	}
	return true
}

// recordAudit writes an audit event when auditing is enabled. A failed write
// is logged but never fails the request.
func (s *Server) recordAudit(r *http.Request, e *audit.Event) {
	if s.auditor == nil {
		return
	}
	e.RequestID = contextkeys.RequestID(r.Context())
	if err := s.auditor.Record(r.Context(), e); err != nil {
		s.logger.WithError(err).Warn("failed to record audit event")
	}
}

func (s *Server) writeAuthzError(w http.ResponseWriter, err error) {
	if errors.Is(err, rbac.ErrUnauthenticated) {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var denied *rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		httputil.WriteForbidden(w, denied.Error())
		return
	}
	s.logger.WithError(err).Error("authorization check failed")
	httputil.WriteInternalError(w, err)
}

// writeStoreError maps storage errors to responses. Missing records are 404;
// everything else is logged and reported as a server error.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, content.ErrPostNotFound):
		httputil.WriteNotFoundError(w, "post not found")
	case errors.Is(err, rbac.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	default:
		s.logger.WithError(err).Error("storage operation failed")
		httputil.WriteInternalError(w, err)
	}
}
