package authn

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrTokenInvalid is returned when a token fails any validation step.
// The wrapped detail is for logs only; callers surface a generic failure.
var ErrTokenInvalid = errors.New("token invalid")

// defaultAllowedAlgorithms lists the asymmetric signing algorithms accepted
// when the configuration does not pin its own set. Symmetric algorithms and
// "none" are never accepted: a provider public key must not double as an
// HMAC secret.
var defaultAllowedAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// KeyResolver resolves a signing key by its key identifier.
// Implemented by idp.KeySetCache.
type KeyResolver interface {
	Key(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

// Config holds token validation settings
type Config struct {
	// Issuer is the expected "iss" claim value
	Issuer string
	// ClientID must appear in the "aud" claim
	ClientID string
	// AllowedAlgorithms restricts acceptable signing algorithms
	AllowedAlgorithms []string
	// ClockSkew tolerates clock drift between us and the provider
	ClockSkew time.Duration
	// Mappings selects the claims used for email, display name, and groups
	Mappings ClaimMappings
}

// Validator verifies ID token signatures and claims against the configured
// provider. Every check is mandatory and short-circuits on first failure;
// partial claims are never returned.
type Validator struct {
	keys    KeyResolver
	config  Config
	parser  *jwt.Parser
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewValidator creates a token validator backed by the given key resolver
func NewValidator(keys KeyResolver, config Config, logger *observability.Logger, metrics *observability.Metrics) *Validator {
	if len(config.AllowedAlgorithms) == 0 {
		config.AllowedAlgorithms = defaultAllowedAlgorithms
	}
	if config.ClockSkew <= 0 {
		config.ClockSkew = time.Minute
	}
	if config.Mappings == (ClaimMappings{}) {
		config.Mappings = DefaultClaimMappings()
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(config.AllowedAlgorithms),
		jwt.WithoutClaimsValidation(),
	)

	return &Validator{
		keys:    keys,
		config:  config,
		parser:  parser,
		logger:  logger.WithComponent("authn"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Validate verifies the raw token and returns its identity claims.
// expectedNonce binds the token to a specific login attempt; a token without
// the matching nonce fails even when the signature and audience are valid.
func (v *Validator) Validate(ctx context.Context, rawToken, expectedNonce string) (*IdentityClaims, error) {
	claims := jwt.MapClaims{}

	token, err := v.parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		default:
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid header")
		}

		key, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("resolving signing key: %w", err)
		}
		return key, nil
	})
	if err != nil {
		return nil, v.reject("signature", fmt.Errorf("%w: %w", ErrTokenInvalid, err))
	}
	if !token.Valid {
		return nil, v.reject("signature", ErrTokenInvalid)
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != v.config.Issuer {
		return nil, v.reject("issuer", fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid))
	}

	audience, err := claims.GetAudience()
	if err != nil || !containsAudience(audience, v.config.ClientID) {
		return nil, v.reject("audience", fmt.Errorf("%w: audience mismatch", ErrTokenInvalid))
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, v.reject("expiry", fmt.Errorf("%w: missing exp claim", ErrTokenInvalid))
	}
	issuedAt, err := claims.GetIssuedAt()
	if err != nil || issuedAt == nil {
		return nil, v.reject("expiry", fmt.Errorf("%w: missing iat claim", ErrTokenInvalid))
	}

	now := v.now()
	if now.Before(issuedAt.Time.Add(-v.config.ClockSkew)) {
		return nil, v.reject("expiry", fmt.Errorf("%w: token issued in the future", ErrTokenInvalid))
	}
	if now.After(expiresAt.Time) {
		return nil, v.reject("expiry", fmt.Errorf("%w: token expired", ErrTokenInvalid))
	}

	nonce := getStringValue(claims, "nonce")
	if expectedNonce == "" || nonce != expectedNonce {
		return nil, v.reject("nonce", fmt.Errorf("%w: nonce mismatch", ErrTokenInvalid))
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return nil, v.reject("subject", fmt.Errorf("%w: missing sub claim", ErrTokenInvalid))
	}

	if v.metrics != nil {
		v.metrics.TokenValidationsTotal.WithLabelValues("ok").Inc()
	}

	return &IdentityClaims{
		Subject:     subject,
		Email:       getStringValue(claims, v.config.Mappings.Email),
		DisplayName: getStringValue(claims, v.config.Mappings.DisplayName),
		Groups:      getArrayValue(claims, v.config.Mappings.Groups),
		Issuer:      issuer,
		Audience:    audience,
		IssuedAt:    issuedAt.Time,
		ExpiresAt:   expiresAt.Time,
		Nonce:       nonce,
	}, nil
}

// reject records a failed validation. The detailed reason goes to logs and
// metrics; the returned error carries ErrTokenInvalid for the caller.
func (v *Validator) reject(check string, err error) error {
	if v.metrics != nil {
		v.metrics.TokenValidationsTotal.WithLabelValues(check).Inc()
	}
	v.logger.WithField("check", check).WithError(err).Warn("ID token rejected")
	return err
}

func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}
