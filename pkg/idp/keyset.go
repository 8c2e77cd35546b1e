package idp

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrKeyNotFound is returned when a key identifier cannot be resolved from
// the current key set, including after a refresh attempt.
var ErrKeyNotFound = errors.New("signing key not found")

// jwks is the wire format of the provider's JSON Web Key Set
type jwks struct {
	Keys []jwk `json:"keys"`
}

// jwk is a single JSON Web Key. RSA keys carry n/e, EC keys carry crv/x/y.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// snapshot is an immutable view of the provider's signing keys. Refreshes
// build a new snapshot and swap it in; a snapshot is never mutated.
type snapshot struct {
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// KeySetConfig holds key set cache settings
type KeySetConfig struct {
	// JWKSEndpoint is the provider's published key set URL
	JWKSEndpoint string
	// MinRefreshInterval bounds provider load under repeated cache misses
	MinRefreshInterval time.Duration
	// HTTPTimeout bounds each fetch
	HTTPTimeout time.Duration
}

// KeySetCache fetches, caches, and refreshes the identity provider's public
// signing keys. It is safe for concurrent use; concurrent misses share a
// single in-flight fetch.
type KeySetCache struct {
	config KeySetConfig
	client *http.Client
	group  singleflight.Group

	mu          sync.RWMutex
	current     *snapshot
	lastAttempt time.Time
	degraded    bool

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewKeySetCache creates a key set cache for the given JWKS endpoint
func NewKeySetCache(config KeySetConfig, client *http.Client, logger *observability.Logger, metrics *observability.Metrics) *KeySetCache {
	if config.MinRefreshInterval <= 0 {
		config.MinRefreshInterval = 5 * time.Minute
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	if client == nil {
		client = NewHTTPClient(config.HTTPTimeout)
	}

	return &KeySetCache{
		config:  config,
		client:  client,
		logger:  logger.WithComponent("keyset"),
		metrics: metrics,
	}
}

// Key resolves a signing key by its key identifier. A miss triggers at most
// one coalesced refresh; misses inside the refetch cool-down fail fast so a
// flood of bogus key ids cannot hammer the provider.
func (c *KeySetCache) Key(ctx context.Context, keyID string) (crypto.PublicKey, error) {
	c.mu.RLock()
	current := c.current
	lastAttempt := c.lastAttempt
	c.mu.RUnlock()

	if current != nil {
		if key, ok := current.keys[keyID]; ok {
			return key, nil
		}
		if time.Since(lastAttempt) < c.config.MinRefreshInterval {
			return nil, fmt.Errorf("%w: %q (refresh cool-down active)", ErrKeyNotFound, keyID)
		}
	}

	refreshed, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		// Refresh failed. Serve the previous snapshot if one exists and
		// mark the cache degraded; with no snapshot the key is unresolvable.
		if current != nil {
			c.setDegraded(true)
			c.logger.WithError(err).Warn("JWKS refresh failed, serving stale snapshot")
			if key, ok := current.keys[keyID]; ok {
				return key, nil
			}
			return nil, fmt.Errorf("%w: %q (stale snapshot)", ErrKeyNotFound, keyID)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrKeyNotFound, keyID, err)
	}

	fresh := refreshed.(*snapshot)
	if key, ok := fresh.keys[keyID]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
}

// Degraded reports whether the cache is serving a stale snapshot after a
// failed refresh. Cleared by the next successful refresh.
func (c *KeySetCache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// refresh fetches the JWKS and swaps in a new snapshot
func (c *KeySetCache) refresh(ctx context.Context) (*snapshot, error) {
	c.mu.Lock()
	c.lastAttempt = time.Now()
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, c.config.JWKSEndpoint, nil)
	if err != nil {
		c.recordRefresh("error")
		return nil, fmt.Errorf("building JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordRefresh("error")
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordRefresh("error")
		return nil, fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}

	var keySet jwks
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		c.recordRefresh("error")
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(keySet.Keys))
	for i := range keySet.Keys {
		key, err := parseJWK(&keySet.Keys[i])
		if err != nil {
			// Skip keys we cannot parse rather than failing the whole
			// set; the provider may publish key types we do not accept.
			c.logger.WithField("kid", keySet.Keys[i].Kid).WithError(err).Warn("skipping unparseable JWK")
			continue
		}
		keys[keySet.Keys[i].Kid] = key
	}

	fresh := &snapshot{keys: keys, fetchedAt: time.Now()}

	c.mu.Lock()
	c.current = fresh
	c.degraded = false
	c.mu.Unlock()

	c.recordRefresh("ok")
	if c.metrics != nil {
		c.metrics.KeySetDegraded.Set(0)
		c.metrics.KeySetKeys.Set(float64(len(keys)))
	}
	c.logger.WithField("keys", len(keys)).Debug("JWKS refreshed")

	return fresh, nil
}

func (c *KeySetCache) setDegraded(degraded bool) {
	c.mu.Lock()
	c.degraded = degraded
	c.mu.Unlock()
	if c.metrics != nil && degraded {
		c.metrics.KeySetDegraded.Set(1)
	}
}

func (c *KeySetCache) recordRefresh(status string) {
	if c.metrics != nil {
		c.metrics.KeySetRefreshTotal.WithLabelValues(status).Inc()
	}
}

// parseJWK converts a JWK into a crypto.PublicKey
func parseJWK(key *jwk) (crypto.PublicKey, error) {
	switch key.Kty {
	case "RSA":
		return parseRSAKey(key)
	case "EC":
		return parseECKey(key)
	default:
		return nil, fmt.Errorf("unsupported key type %q", key.Kty)
	}
}

func parseRSAKey(key *jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func parseECKey(key *jwk) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch key.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", key.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(key.X)
	if err != nil {
		return nil, fmt.Errorf("decoding x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(key.Y)
	if err != nil {
		return nil, fmt.Errorf("decoding y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
