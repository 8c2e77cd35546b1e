package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/authn"
	"github.com/platinummonkey/gatehouse/pkg/idp"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provision"
	"github.com/platinummonkey/gatehouse/pkg/session"
)

// CodeExchanger builds provider authorization URLs and redeems
// authorization codes
type CodeExchanger interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code string) (*idp.TokenSet, error)
}

// TokenValidator validates a raw ID token against an expected nonce
type TokenValidator interface {
	Validate(ctx context.Context, rawToken, expectedNonce string) (*authn.IdentityClaims, error)
}

// Provisioner creates or updates the local user for validated claims
type Provisioner interface {
	Provision(ctx context.Context, claims *authn.IdentityClaims) (*provision.UserRecord, error)
}

// SessionIssuer creates a session for a provisioned user
type SessionIssuer interface {
	Issue(ctx context.Context, userID string) (*session.Record, error)
}

// ProfileFetcher optionally enriches claims from the provider's userinfo
// endpoint
type ProfileFetcher interface {
	Enabled() bool
	Profile(ctx context.Context, accessToken string) (map[string]interface{}, error)
}

// CallbackResult is the outcome of a successful authorization callback
type CallbackResult struct {
	User           *provision.UserRecord
	Session        *session.Record
	RedirectTarget string
}

// Flow orchestrates the authorization code round trip: begin with a
// redirect to the provider, finish in the callback with state consumption,
// code exchange, token validation, provisioning, and session issuance.
type Flow struct {
	states      *StateStore
	exchanger   CodeExchanger
	validator   TokenValidator
	provisioner Provisioner
	sessions    SessionIssuer
	profiles    ProfileFetcher
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewFlow creates an authorization flow. The profile fetcher may be nil
// when the provider exposes no userinfo endpoint.
func NewFlow(states *StateStore, exchanger CodeExchanger, validator TokenValidator,
	provisioner Provisioner, sessions SessionIssuer, profiles ProfileFetcher,
	logger *observability.Logger, metrics *observability.Metrics) *Flow {
	return &Flow{
		states:      states,
		exchanger:   exchanger,
		validator:   validator,
		provisioner: provisioner,
		sessions:    sessions,
		profiles:    profiles,
		logger:      logger.WithComponent("login"),
		metrics:     metrics,
	}
}

// BeginLogin starts an authorization attempt and returns the provider URL
// to redirect the browser to
func (f *Flow) BeginLogin(ctx context.Context, redirectTarget string) (string, *LoginAttempt, error) {
	attempt, err := f.states.Issue(redirectTarget)
	if err != nil {
		f.metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("issuing login attempt: %w", err)
	}

	f.metrics.LoginAttemptsTotal.WithLabelValues("initiated").Inc()
	f.logger.WithField("request_id", observability.GetRequestID(ctx)).Debug("login initiated")
	return f.exchanger.AuthCodeURL(attempt.State, attempt.Nonce), attempt, nil
}

// HandleCallback finishes an authorization attempt. The state is consumed
// before anything else; a forged or replayed state never reaches the token
// endpoint. The ID token must carry the nonce issued with this attempt.
func (f *Flow) HandleCallback(ctx context.Context, state, code string) (*CallbackResult, error) {
	attempt, err := f.states.Consume(state)
	if err != nil {
		f.metrics.CallbacksTotal.WithLabelValues("invalid_state").Inc()
		return nil, err
	}

	tokens, err := f.exchanger.Exchange(ctx, code)
	if err != nil {
		f.metrics.CallbacksTotal.WithLabelValues("exchange_failed").Inc()
		return nil, err
	}

	claims, err := f.validator.Validate(ctx, tokens.RawIDToken, attempt.Nonce)
	if err != nil {
		f.metrics.CallbacksTotal.WithLabelValues("token_invalid").Inc()
		return nil, err
	}

	f.enrichClaims(ctx, claims, tokens.AccessToken)

	user, err := f.provisioner.Provision(ctx, claims)
	if err != nil {
		f.metrics.CallbacksTotal.WithLabelValues("provisioning_failed").Inc()
		return nil, err
	}

	sess, err := f.sessions.Issue(ctx, user.LocalID)
	if err != nil {
		f.metrics.CallbacksTotal.WithLabelValues("session_failed").Inc()
		return nil, fmt.Errorf("issuing session: %w", err)
	}

	f.metrics.CallbacksTotal.WithLabelValues("success").Inc()
	f.logger.WithFields(map[string]interface{}{
		"local_id": user.LocalID,
		"role":     string(user.Role),
	}).Info("login completed")

	return &CallbackResult{
		User:           user,
		Session:        sess,
		RedirectTarget: attempt.RedirectTarget,
	}, nil
}

// enrichClaims fills missing email or display name from the userinfo
// endpoint. Enrichment is best-effort: a userinfo failure never fails a
// login that already has a valid ID token.
func (f *Flow) enrichClaims(ctx context.Context, claims *authn.IdentityClaims, accessToken string) {
	if f.profiles == nil || !f.profiles.Enabled() || accessToken == "" {
		return
	}
	if claims.Email != "" && claims.DisplayName != "" {
		return
	}

	profile, err := f.profiles.Profile(ctx, accessToken)
	if err != nil {
		f.logger.WithError(err).Warn("userinfo enrichment failed")
		return
	}

	if claims.Email == "" {
		if email, ok := profile["email"].(string); ok {
			claims.Email = email
		}
	}
	if claims.DisplayName == "" {
		if name, ok := profile["name"].(string); ok {
			claims.DisplayName = name
		}
	}
}

// Outcome maps a callback error to its taxonomy bucket. Used by the HTTP
// layer to pick a status code without inspecting internal detail.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, idp.ErrTokenExchange):
		return "exchange_failed"
	case errors.Is(err, authn.ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, provision.ErrProvisioning):
		return "provisioning_failed"
	default:
		return "internal_error"
	}
}
