package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Seeder populates the role and permission catalogs and wires the grant
// policy. Seeding is idempotent: rows that already exist are skipped, so it
// can run on every startup and in migration hooks without duplicating data.
type Seeder struct {
	store   *Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSeeder creates a seeder. Metrics may be nil.
func NewSeeder(store *Store, logger *observability.Logger, metrics *observability.Metrics) *Seeder {
	return &Seeder{store: store, logger: logger, metrics: metrics}
}

// Seed inserts the permission catalog, the role catalog, and the
// role-to-permission grants declared by the grant policy. Any single failure
// aborts the run; a re-run resumes cleanly because every insert skips
// existing rows.
func (s *Seeder) Seed(ctx context.Context) error {
	if err := s.seed(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.SeedRunsTotal.WithLabelValues("failure").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.SeedRunsTotal.WithLabelValues("success").Inc()
	}
	return nil
}

func (s *Seeder) seed(ctx context.Context) error {
	for _, p := range PermissionCatalog() {
		p := p
		if err := s.store.CreatePermission(ctx, &p); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p.Name, err)
		}
	}

	for _, r := range RoleCatalog() {
		r := r
		if err := s.store.CreateRole(ctx, &r); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", r.Name, err)
		}
	}

	// Catalog inserts skip existing rows, so the generated ids may not have
	// been used. Re-read both catalogs to grant against the stored ids.
	permissions, err := s.store.ListPermissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list permissions after seeding: %w", err)
	}
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list roles after seeding: %w", err)
	}

	rolesByName := make(map[string]Role, len(roles))
	for _, r := range roles {
		rolesByName[r.Name] = r
	}

	granted := 0
	for _, rule := range GrantPolicy() {
		role, ok := rolesByName[rule.Role]
		if !ok {
			return fmt.Errorf("grant policy references unknown role %s", rule.Role)
		}
		for _, p := range rule.GrantedPermissions(permissions) {
			if err := s.store.GrantPermission(ctx, role.ID, p.ID); err != nil {
				return fmt.Errorf("failed to grant %s to role %s: %w", p.Name, role.Name, err)
			}
			granted++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"permissions": len(permissions),
		"roles":       len(roles),
		"grants":      granted,
	}).Info("seeded role and permission catalogs")
	return nil
}
