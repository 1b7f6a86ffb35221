package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = fmt.Errorf("user not found")

// UserStore handles user persistence. User rows are normally created by the
// authentication provider at signup; the API layer also creates them for
// administratively provisioned accounts.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new user store
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// GetUser retrieves a user by id.
func (s *UserStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, email_verified, name, image, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	var image sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.EmailVerified,
		&user.Name,
		&image,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if image.Valid {
		img := image.String
		user.Image = &img
	}
	return &user, nil
}

// ListUsers returns all users ordered by creation time.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, email, email_verified, name, image, created_at, updated_at
		FROM users
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var image sql.NullString
		err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.EmailVerified,
			&user.Name,
			&image,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if image.Valid {
			img := image.String
			user.Image = &img
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CreateUser inserts a new user. The id is generated when empty.
func (s *UserStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, email_verified, name, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.Name,
		user.Image,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser updates a user's email and/or name. Nil fields are left unchanged.
func (s *UserStore) UpdateUser(ctx context.Context, id string, email, name *string) (*User, error) {
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if email != nil {
		current.Email = *email
	}
	if name != nil {
		current.Name = *name
	}
	current.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = $1, name = $2, updated_at = $3
		WHERE id = $4
	`
	_, err = s.db.ExecContext(ctx, query, current.Email, current.Name, current.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return current, nil
}

// DeleteUser removes a user. Role memberships, sessions and posts cascade
// via foreign keys.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
