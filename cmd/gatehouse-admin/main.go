// Command gatehouse-admin is the operator CLI: it runs migrations and
// seeding, manages role assignments, and inspects resolved permissions
// without going through the HTTP API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

const usage = `Usage: gatehouse-admin <command> [flags]

Commands:
  migrate                          run pending schema migrations
  seed                             seed the role and permission catalogs
  create-user -email E -name N     create a user
  assign-role -user ID -role NAME  assign a role to a user
  revoke-role -user ID -role NAME  revoke a role from a user
  list-roles                       list all roles
  list-permissions                 list all permissions
  user-permissions -user ID        show a user's resolved permissions
  purge-sessions                   delete expired sessions

Connection settings come from the GATEHOUSE_* environment variables.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "gatehouse-admin: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	db       *sql.DB
	store    *rbac.Store
	users    *auth.UserStore
	sessions *auth.SessionVerifier
	resolver *rbac.Resolver
	logger   *observability.Logger
}

func run(command string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	store := rbac.NewStore(db)
	users := auth.NewUserStore(db)
	e := &env{
		db:       db,
		store:    store,
		users:    users,
		sessions: auth.NewSessionVerifier(db),
		resolver: rbac.NewResolver(store, users, nil, logger, nil),
		logger:   logger,
	}

	switch command {
	case "migrate":
		return rbac.RunMigrations(ctx, db)
	case "seed":
		if err := rbac.RunMigrations(ctx, db); err != nil {
			return err
		}
		return rbac.NewSeeder(e.store, logger, nil).Seed(ctx)
	case "create-user":
		return e.createUser(ctx, args)
	case "assign-role":
		return e.assignRole(ctx, args)
	case "revoke-role":
		return e.revokeRole(ctx, args)
	case "list-roles":
		return e.listRoles(ctx)
	case "list-permissions":
		return e.listPermissions(ctx)
	case "user-permissions":
		return e.userPermissions(ctx, args)
	case "purge-sessions":
		return e.purgeSessions(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (e *env) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "user email (required)")
	name := fs.String("name", "", "display name (required)")
	role := fs.String("role", "", "optional role to assign")
	fs.Parse(args)
	if *email == "" || *name == "" {
		return fmt.Errorf("-email and -name are required")
	}

	user := &auth.User{Email: *email, Name: *name}
	if err := e.users.CreateUser(ctx, user); err != nil {
		return err
	}
	if *role != "" {
		if err := e.store.AssignRoleByName(ctx, user.ID, *role); err != nil {
			return err
		}
	}
	fmt.Println(user.ID)
	return nil
}

func (e *env) assignRole(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("assign-role", flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	role := fs.String("role", "", "role name (required)")
	fs.Parse(args)
	if *user == "" || *role == "" {
		return fmt.Errorf("-user and -role are required")
	}

	if _, err := e.users.GetUser(ctx, *user); err != nil {
		return err
	}
	if err := e.store.AssignRoleByName(ctx, *user, *role); err != nil {
		return err
	}
	fmt.Printf("assigned role %s to user %s\n", *role, *user)
	return nil
}

func (e *env) revokeRole(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke-role", flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	role := fs.String("role", "", "role name (required)")
	fs.Parse(args)
	if *user == "" || *role == "" {
		return fmt.Errorf("-user and -role are required")
	}

	r, err := e.store.GetRoleByName(ctx, *role)
	if err != nil {
		return err
	}
	if err := e.store.RevokeRole(ctx, *user, r.ID); err != nil {
		return err
	}
	fmt.Printf("revoked role %s from user %s\n", *role, *user)
	return nil
}

func (e *env) listRoles(ctx context.Context) error {
	roles, err := e.store.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, r := range roles {
		fmt.Printf("%s\t%s\t%s\n", r.ID, r.Name, r.Description)
	}
	return nil
}

func (e *env) listPermissions(ctx context.Context) error {
	permissions, err := e.store.ListPermissions(ctx)
	if err != nil {
		return err
	}
	for _, p := range permissions {
		fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.Description)
	}
	return nil
}

func (e *env) userPermissions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user-permissions", flag.ExitOnError)
	user := fs.String("user", "", "user id (required)")
	fs.Parse(args)
	if *user == "" {
		return fmt.Errorf("-user is required")
	}

	// Resolve through GetUserWithPermissions so a bad id is reported
	// instead of printing an empty set.
	uwp, err := e.resolver.GetUserWithPermissions(ctx, *user)
	if err != nil {
		return err
	}
	for _, p := range uwp.Permissions {
		fmt.Println(p)
	}
	return nil
}

func (e *env) purgeSessions(ctx context.Context) error {
	purged, err := e.sessions.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d expired sessions\n", purged)
	return nil
}
