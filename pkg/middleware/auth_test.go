package middleware

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

func setupTestEnv(t *testing.T) (*sql.DB, *ContextBuilder, string) {
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
	`)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	users := auth.NewUserStore(db)
	rbacStore := rbac.NewStore(db)
	resolver := rbac.NewResolver(rbacStore, users, nil, logger, nil)
	builder := NewContextBuilder(auth.NewSessionVerifier(db), resolver, logger, nil)

	user := &auth.User{Email: "mw@example.com", Name: "MW"}
	require.NoError(t, users.CreateUser(context.Background(), user))
	require.NoError(t, rbac.NewSeeder(rbacStore, logger, nil).Seed(context.Background()))
	require.NoError(t, rbacStore.AssignRoleByName(context.Background(), user.ID, rbac.RoleUser))

	now := time.Now().UTC()
	_, err = db.Exec(
		`INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), "mw-token", user.ID, now.Add(time.Hour), "", "", now, now,
	)
	require.NoError(t, err)

	return db, builder, user.ID
}

func TestContextBuilder_AuthenticatedRequest(t *testing.T) {
	_, builder, userID := setupTestEnv(t)

	var got *auth.AuthContext
	handler := builder.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthContext(r)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer mw-token")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, got.User)
	assert.Equal(t, userID, got.UserID())
	assert.Equal(t, []string{"posts.read", "users.read"}, got.User.Permissions)
	assert.True(t, got.HasPermission("users.read"))
	assert.False(t, got.HasPermission("users.write"))
}

func TestContextBuilder_AnonymousRequest(t *testing.T) {
	_, builder, _ := setupTestEnv(t)

	var got *auth.AuthContext
	handler := builder.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthContext(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	require.NotNil(t, got)
	assert.Nil(t, got.User)
	assert.Empty(t, got.UserID())
	assert.False(t, got.HasPermission("users.read"))
}

func TestContextBuilder_BadTokenIsAnonymous(t *testing.T) {
	_, builder, _ := setupTestEnv(t)

	var got *auth.AuthContext
	handler := builder.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthContext(r)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer wrong-token")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Nil(t, got.User)
}

func TestContextBuilder_DeletedSessionUserIsAnonymous(t *testing.T) {
	db, builder, userID := setupTestEnv(t)

	// The session row survives but its user is gone: the resolver lookup
	// fails and the request downgrades to anonymous.
	_, err := db.Exec(`PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM users WHERE id = $1`, userID)
	require.NoError(t, err)

	var got *auth.AuthContext
	handler := builder.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthContext(r)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer mw-token")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Nil(t, got.User)
}

func TestGetAuthContext_WithoutMiddleware(t *testing.T) {
	got := GetAuthContext(httptest.NewRequest("GET", "/", nil))
	require.NotNil(t, got)
	assert.Empty(t, got.UserID())
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-ID", "preset")
	handler.ServeHTTP(rec, r)
	assert.Equal(t, "preset", rec.Header().Get("X-Request-ID"))
}
