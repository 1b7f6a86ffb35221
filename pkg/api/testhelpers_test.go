package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/content"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

type testEnv struct {
	db      *sql.DB
	router  http.Handler
	users   *auth.UserStore
	posts   *content.PostStore
	store   *rbac.Store
	auditor *audit.Store

	adminID, editorID, userID, noneID             string
	adminToken, editorToken, userToken, noneToken string
}

func newTestEnv(t *testing.T, defaultRole string) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;

		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			email_verified INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			image TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at TIMESTAMP NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE roles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE permissions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE user_roles (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(user_id, role_id)
		);

		CREATE TABLE role_permissions (
			id TEXT PRIMARY KEY,
			role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			permission_id TEXT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(role_id, permission_id)
		);

		CREATE TABLE posts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT,
			author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			actor_id TEXT,
			target_id TEXT,
			operation TEXT,
			permission TEXT,
			request_id TEXT,
			detail TEXT
		);
	`)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	env := &testEnv{
		db:      db,
		users:   auth.NewUserStore(db),
		posts:   content.NewPostStore(db),
		store:   rbac.NewStore(db),
		auditor: audit.NewStore(db),
	}

	require.NoError(t, rbac.NewSeeder(env.store, logger, nil).Seed(context.Background()))

	resolver := rbac.NewResolver(env.store, env.users, nil, logger, nil)
	guard := rbac.NewGuard(resolver, logger, nil)
	policy := rbac.NewPolicyTable(guard, logger, nil)
	builder := middleware.NewContextBuilder(auth.NewSessionVerifier(db), resolver, logger, nil)

	server := NewServer(env.users, env.posts, env.store, resolver, policy, env.auditor, logger, nil, defaultRole)
	env.router = server.Routes(builder)

	env.adminID, env.adminToken = env.createUser(t, "admin@example.com", rbac.RoleAdmin)
	env.editorID, env.editorToken = env.createUser(t, "editor@example.com", rbac.RoleEditor)
	env.userID, env.userToken = env.createUser(t, "user@example.com", rbac.RoleUser)
	env.noneID, env.noneToken = env.createUser(t, "none@example.com", "")

	return env
}

func (e *testEnv) createUser(t *testing.T, email, role string) (id, token string) {
	t.Helper()

	user := &auth.User{Email: email, Name: email}
	require.NoError(t, e.users.CreateUser(context.Background(), user))
	if role != "" {
		require.NoError(t, e.store.AssignRoleByName(context.Background(), user.ID, role))
	}

	token = uuid.NewString()
	now := time.Now().UTC()
	_, err := e.db.Exec(
		`INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), token, user.ID, now.Add(time.Hour), "", "", now, now,
	)
	require.NoError(t, err)

	return user.ID, token
}

// do runs a request through the full router with an optional bearer token
// and JSON body.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, path, reader)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
