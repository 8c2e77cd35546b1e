package login

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrInvalidState is returned when a callback presents a state value that
// is unknown, expired, or already consumed
var ErrInvalidState = errors.New("invalid login state")

const (
	// stateBytes is the entropy of the state and nonce values. 32 bytes
	// gives 256 bits, comfortably above the 128-bit floor.
	stateBytes = 32

	// DefaultStateTTL bounds how long a login attempt may sit between the
	// redirect to the provider and the callback
	DefaultStateTTL = 10 * time.Minute

	// maxPendingAttempts caps the state store so unauthenticated traffic
	// cannot grow it without bound
	maxPendingAttempts = 4096
)

// LoginAttempt is one in-flight authorization round trip. The state value
// keys the attempt; the nonce binds the eventual ID token to it.
type LoginAttempt struct {
	State          string
	Nonce          string
	RedirectTarget string
	CreatedAt      time.Time
}

// StateStore tracks pending login attempts. Each attempt is single-use:
// Consume removes the entry, so a replayed state value fails.
type StateStore struct {
	mu      sync.Mutex
	pending *expirable.LRU[string, *LoginAttempt]
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStateStore creates a state store. A zero ttl selects DefaultStateTTL.
func NewStateStore(ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		pending: expirable.NewLRU[string, *LoginAttempt](maxPendingAttempts, nil, ttl),
		logger:  logger.WithComponent("state"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Issue creates a login attempt with fresh state and nonce values. The
// redirect target must be a relative path; anything else is replaced with
// "/" so the provider round trip can never redirect off-site.
func (s *StateStore) Issue(redirectTarget string) (*LoginAttempt, error) {
	state, err := randomValue()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	nonce, err := randomValue()
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	attempt := &LoginAttempt{
		State:          state,
		Nonce:          nonce,
		RedirectTarget: sanitizeRedirect(redirectTarget),
		CreatedAt:      s.now(),
	}

	s.mu.Lock()
	s.pending.Add(state, attempt)
	s.mu.Unlock()
	return attempt, nil
}

// Consume takes the attempt for the given state, removing it so a second
// consume of the same state fails. Unknown and expired states are rejected
// identically.
func (s *StateStore) Consume(state string) (*LoginAttempt, error) {
	if state == "" {
		s.metrics.StateConsumedTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidState
	}

	s.mu.Lock()
	attempt, ok := s.pending.Get(state)
	if ok {
		s.pending.Remove(state)
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.StateConsumedTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidState
	}

	s.metrics.StateConsumedTotal.WithLabelValues("consumed").Inc()
	return attempt, nil
}

// Pending returns the number of attempts currently awaiting a callback
func (s *StateStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// sanitizeRedirect keeps only same-site relative paths. Absolute URLs,
// scheme-relative URLs ("//evil.example") and backslash variants all fall
// back to the root path.
func sanitizeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	if !strings.HasPrefix(target, "/") {
		return "/"
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	if strings.ContainsAny(target, "\r\n") {
		return "/"
	}
	return target
}

func randomValue() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
