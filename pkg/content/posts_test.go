package content

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
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

		CREATE TABLE posts (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT,
			author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	require.NoError(t, err)

	return db
}

func createAuthor(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO users (id, email, email_verified, name, image, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, email, true, email, nil, now, now,
	)
	require.NoError(t, err)
	return id
}

func TestPostStore_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewPostStore(db)
	author := createAuthor(t, db, "author@example.com")

	post := &Post{Title: "First", Content: "hello", AuthorID: author}
	require.NoError(t, store.CreatePost(ctx, post))
	assert.NotEmpty(t, post.ID)

	got, err := store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, author, got.AuthorID)

	newTitle := "Second"
	updated, err := store.UpdatePost(ctx, post.ID, &newTitle, nil)
	require.NoError(t, err)
	assert.Equal(t, "Second", updated.Title)
	assert.Equal(t, "hello", updated.Content)

	posts, err := store.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	require.NoError(t, store.DeletePost(ctx, post.ID))
	_, err = store.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, store.DeletePost(ctx, post.ID), ErrPostNotFound)
}

func TestPostStore_ListByAuthor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewPostStore(db)

	alice := createAuthor(t, db, "alice@example.com")
	bob := createAuthor(t, db, "bob@example.com")

	require.NoError(t, store.CreatePost(ctx, &Post{Title: "a1", AuthorID: alice}))
	require.NoError(t, store.CreatePost(ctx, &Post{Title: "a2", AuthorID: alice}))
	require.NoError(t, store.CreatePost(ctx, &Post{Title: "b1", AuthorID: bob}))

	posts, err := store.ListPostsByAuthor(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestPostStore_AuthorDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewPostStore(db)
	author := createAuthor(t, db, "gone@example.com")

	post := &Post{Title: "orphan", AuthorID: author}
	require.NoError(t, store.CreatePost(ctx, post))

	_, err := db.Exec(`DELETE FROM users WHERE id = $1`, author)
	require.NoError(t, err)

	_, err = store.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
}
