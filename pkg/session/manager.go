package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provision"
)

// ErrSessionInvalid is returned when a presented session identifier is
// unknown, expired, or revoked. Callers receive no further detail about
// which case applied.
var ErrSessionInvalid = errors.New("session invalid")

// sessionIDBytes is the entropy of a session identifier. 32 bytes gives
// 256 bits, making identifiers infeasible to guess.
const sessionIDBytes = 32

// DefaultTTL is the session lifetime applied when none is configured
const DefaultTTL = 24 * time.Hour

// Record is a server-side session. The identifier is an opaque random
// string carrying no user information.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists session records. A lookup miss returns (nil, nil).
// Delete of an absent session is not an error.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// UserLookup resolves a local user id to its record
type UserLookup interface {
	FindByID(ctx context.Context, localID string) (*provision.UserRecord, error)
}

// Manager issues, validates, and revokes opaque sessions
type Manager struct {
	store   Store
	users   UserLookup
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager creates a session manager. A zero ttl selects DefaultTTL.
func NewManager(store Store, users UserLookup, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:   store,
		users:   users,
		ttl:     ttl,
		logger:  logger.WithComponent("session"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Issue creates a new session for the given user
func (m *Manager) Issue(ctx context.Context, userID string) (*Record, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := m.now()
	record := &Record{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	m.metrics.SessionsIssuedTotal.Inc()
	m.logger.WithField("user_id", userID).Debug("session issued")
	return record, nil
}

// Validate resolves a session identifier to the owning user. Unknown,
// expired, and revoked sessions all yield ErrSessionInvalid.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*provision.UserRecord, error) {
	if sessionID == "" {
		return nil, ErrSessionInvalid
	}

	record, err := m.store.Find(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if record == nil {
		return nil, ErrSessionInvalid
	}
	if record.Expired(m.now()) {
		// Expired sessions are removed lazily here and in bulk by Sweep.
		if err := m.store.Delete(ctx, sessionID); err != nil {
			m.logger.WithError(err).Warn("failed to remove expired session")
		}
		return nil, ErrSessionInvalid
	}

	user, err := m.users.FindByID(ctx, record.UserID)
	if err != nil {
		return nil, fmt.Errorf("looking up session user: %w", err)
	}
	if user == nil {
		return nil, ErrSessionInvalid
	}
	return user, nil
}

// Revoke removes a session. Revoking an unknown or already-revoked
// session succeeds.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	m.metrics.SessionsRevokedTotal.Inc()
	return nil
}

// Sweep removes all expired sessions and returns how many were removed
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	removed, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	if removed > 0 {
		m.metrics.SessionsSweptTotal.Add(float64(removed))
		m.logger.WithField("removed", removed).Info("expired sessions swept")
	}
	return removed, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
