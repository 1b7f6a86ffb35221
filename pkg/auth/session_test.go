package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertSession(t *testing.T, db *sql.DB, userID, token string, expiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO sessions (id, token, user_id, expires_at, ip_address, user_agent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), token, userID, expiresAt, "127.0.0.1", "test-agent", now, now,
	)
	require.NoError(t, err)
}

func TestSessionVerifier_GetSession(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := NewUserStore(db)
	user := &User{Email: "sess@example.com", Name: "Sess"}
	require.NoError(t, users.CreateUser(ctx, user))

	verifier := NewSessionVerifier(db)
	insertSession(t, db, user.ID, "valid-token", time.Now().Add(time.Hour))
	insertSession(t, db, user.ID, "stale-token", time.Now().Add(-time.Hour))

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer valid-token")
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, user.ID, sess.UserID)
		assert.Equal(t, "127.0.0.1", sess.IPAddress)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		require.NotNil(t, sess)
	})

	t.Run("no token", func(t *testing.T) {
		sess, err := verifier.GetSession(ctx, httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("unknown token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer nope")
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("expired token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer stale-token")
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "valid-token")
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("non-bearer header falls through to cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
		sess, err := verifier.GetSession(ctx, r)
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, user.ID, sess.UserID)
	})
}

func TestSessionVerifier_PurgeExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := NewUserStore(db)
	user := &User{Email: "purge@example.com", Name: "Purge"}
	require.NoError(t, users.CreateUser(ctx, user))

	verifier := NewSessionVerifier(db)
	insertSession(t, db, user.ID, "keep", time.Now().Add(time.Hour))
	insertSession(t, db, user.ID, "drop-1", time.Now().Add(-time.Minute))
	insertSession(t, db, user.ID, "drop-2", time.Now().Add(-time.Hour))

	purged, err := verifier.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer keep")
	sess, err := verifier.GetSession(ctx, r)
	require.NoError(t, err)
	assert.NotNil(t, sess)
}
