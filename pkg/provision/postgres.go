package provision

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore is a UserStore backed by PostgreSQL. The schema enforces
// uniqueness on email and on external subject:
//
//	CREATE TABLE gatehouse_users (
//	    local_id         TEXT PRIMARY KEY,
//	    email            TEXT NOT NULL UNIQUE,
//	    display_name     TEXT NOT NULL,
//	    role             TEXT NOT NULL,
//	    external_subject TEXT NOT NULL UNIQUE,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL,
//	    last_login_at    TIMESTAMPTZ NOT NULL
//	)
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed user store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `local_id, email, display_name, role, external_subject, created_at, updated_at, last_login_at`

// FindBySubject returns the user with the given external subject, or nil
func (s *PostgresStore) FindBySubject(ctx context.Context, subject string) (*UserRecord, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM gatehouse_users WHERE external_subject = $1`, subject)
}

// FindByEmail returns the user with the given email, or nil
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM gatehouse_users WHERE email = $1`, email)
}

// FindByID returns the user with the given local id, or nil
func (s *PostgresStore) FindByID(ctx context.Context, localID string) (*UserRecord, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM gatehouse_users WHERE local_id = $1`, localID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg interface{}) (*UserRecord, error) {
	user := &UserRecord{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.LocalID, &user.Email, &user.DisplayName, &user.Role,
		&user.ExternalSubject, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// Create inserts a new user record
func (s *PostgresStore) Create(ctx context.Context, user *UserRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gatehouse_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.LocalID, user.Email, user.DisplayName, user.Role,
		user.ExternalSubject, user.CreatedAt, user.UpdatedAt, user.LastLoginAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// Update replaces the mutable attributes of an existing user record
func (s *PostgresStore) Update(ctx context.Context, user *UserRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE gatehouse_users
		SET email = $1, display_name = $2, role = $3, external_subject = $4,
			updated_at = $5, last_login_at = $6
		WHERE local_id = $7
	`, user.Email, user.DisplayName, user.Role, user.ExternalSubject,
		user.UpdatedAt, user.LastLoginAt, user.LocalID)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q not found", user.LocalID)
	}
	return nil
}
