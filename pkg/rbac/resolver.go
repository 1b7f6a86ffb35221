package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// UserFinder looks up user records for permission resolution.
type UserFinder interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// Resolver computes effective permission sets for users. Role-to-permission
// mappings are flat: a user's effective set is the deduplicated union of the
// permissions granted to every role the user holds.
//
// Read failures degrade to an empty permission set rather than surfacing an
// error, so a storage outage locks users out of guarded operations instead of
// letting requests through unchecked.
type Resolver struct {
	store   *Store
	users   UserFinder
	cache   PermissionCache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a permission resolver. The cache and metrics are
// optional and may be nil.
func NewResolver(store *Store, users UserFinder, cache PermissionCache, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:   store,
		users:   users,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// GetUserPermissions returns the deduplicated, sorted permission names
// granted to a user through any role. A user with no roles resolves to an
// empty set. Storage failures are logged and resolve to an empty set.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID string) []string {
	if r.cache != nil {
		if permissions, ok := r.cache.Get(ctx, userID); ok {
			if r.metrics != nil {
				r.metrics.PermissionCacheHits.Inc()
			}
			return permissions
		}
		if r.metrics != nil {
			r.metrics.PermissionCacheMisses.Inc()
		}
	}

	names, err := r.store.UserPermissionNames(ctx, userID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("permission resolution failed, treating user as having no permissions")
		if r.metrics != nil {
			r.metrics.ResolverFailuresTotal.Inc()
		}
		return []string{}
	}

	permissions := dedupeSorted(names)
	if r.cache != nil {
		r.cache.Set(ctx, userID, permissions)
	}
	return permissions
}

// HasPermission reports whether a user holds the named permission through any
// role. Storage failures are logged and report false.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) bool {
	if r.cache != nil {
		if permissions, ok := r.cache.Get(ctx, userID); ok {
			if r.metrics != nil {
				r.metrics.PermissionCacheHits.Inc()
			}
			for _, p := range permissions {
				if p == permission {
					return true
				}
			}
			return false
		}
		if r.metrics != nil {
			r.metrics.PermissionCacheMisses.Inc()
		}
	}

	ok, err := r.store.UserHasPermission(ctx, userID, permission)
	if err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":    userID,
			"permission": permission,
		}).Warn("permission check failed, denying")
		if r.metrics != nil {
			r.metrics.ResolverFailuresTotal.Inc()
		}
		return false
	}
	return ok
}

// GetUserWithPermissions returns a user record combined with the user's
// effective permission set. Unlike GetUserPermissions, a failed user lookup
// propagates: callers that need the profile must not receive a fabricated
// record. A missing user returns ErrNotFound.
func (r *Resolver) GetUserWithPermissions(ctx context.Context, userID string) (*auth.UserWithPermissions, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	return &auth.UserWithPermissions{
		User:        *user,
		Permissions: r.GetUserPermissions(ctx, userID),
	}, nil
}

// InvalidateUser drops any cached permission set for a user. Called after
// role assignments change.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate permission cache")
	}
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
