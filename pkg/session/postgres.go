package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is a session Store backed by PostgreSQL:
//
//	CREATE TABLE gatehouse_sessions (
//	    id         TEXT PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	)
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save stores a session record
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gatehouse_sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.UserID, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Find returns the session with the given id, or nil
func (s *PostgresStore) Find(ctx context.Context, id string) (*Record, error) {
	record := &Record{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, expires_at
		FROM gatehouse_sessions WHERE id = $1
	`, id).Scan(&record.ID, &record.UserID, &record.CreatedAt, &record.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return record, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM gatehouse_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes all sessions that expired at or before now
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM gatehouse_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete result: %w", err)
	}
	return int(affected), nil
}
