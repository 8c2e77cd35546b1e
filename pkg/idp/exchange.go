package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ErrTokenExchange is returned when the authorization code cannot be
// exchanged for tokens: the provider rejected the code or was unreachable
// after the retry budget was spent.
var ErrTokenExchange = errors.New("token exchange failed")

// TokenSet is the result of a successful authorization-code exchange
type TokenSet struct {
	AccessToken string
	RawIDToken  string
	Expiry      time.Time
}

// ExchangeConfig holds token exchange settings
type ExchangeConfig struct {
	ClientID      string
	ClientSecret  string
	AuthEndpoint  string
	TokenEndpoint string
	RedirectURL   string
	Scopes        []string

	// HTTPTimeout bounds each exchange attempt
	HTTPTimeout time.Duration
	// MaxRetries bounds retries for 5xx/network failures. 4xx is never retried.
	MaxRetries int
	// RetryDelay is the initial backoff delay, doubled per attempt
	RetryDelay time.Duration
}

// Exchanger exchanges authorization codes at the provider's token endpoint
type Exchanger struct {
	oauth   *oauth2.Config
	config  ExchangeConfig
	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
	sleep   func(time.Duration)
}

// NewExchanger creates a code exchanger for the configured provider
func NewExchanger(config ExchangeConfig, client *http.Client, logger *observability.Logger, metrics *observability.Metrics) *Exchanger {
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if client == nil {
		client = NewHTTPClient(config.HTTPTimeout)
	}
	if len(config.Scopes) == 0 {
		config.Scopes = []string{"openid", "profile", "email"}
	}

	oauthConfig := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.AuthEndpoint,
			TokenURL: config.TokenEndpoint,
		},
	}

	return &Exchanger{
		oauth:   oauthConfig,
		config:  config,
		client:  client,
		logger:  logger.WithComponent("exchange"),
		metrics: metrics,
		sleep:   time.Sleep,
	}
}

// AuthCodeURL builds the provider authorization URL embedding the per-attempt
// state and nonce values
func (e *Exchanger) AuthCodeURL(state, nonce string) string {
	return e.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
}

// Exchange trades an authorization code for tokens. Transient failures are
// retried with exponential backoff up to the configured budget; a 4xx from
// the provider means the attempt is unsalvageable and fails immediately.
func (e *Exchanger) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	started := time.Now()

	var lastErr error
	delay := e.config.RetryDelay

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.WithField("attempt", attempt).Debug("retrying token exchange")
			e.sleep(delay)
			delay *= 2
		}

		token, err := e.exchangeOnce(ctx, code)
		if err == nil {
			e.recordExchange("ok", started)
			return token, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
	}

	e.recordExchange("error", started)
	e.logger.WithError(lastErr).Warn("token exchange failed")
	return nil, fmt.Errorf("%w: %w", ErrTokenExchange, lastErr)
}

// exchangeOnce performs a single exchange attempt with a bounded timeout
func (e *Exchanger) exchangeOnce(ctx context.Context, code string) (*TokenSet, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.config.HTTPTimeout)
	defer cancel()
	attemptCtx = context.WithValue(attemptCtx, oauth2.HTTPClient, e.client)

	token, err := e.oauth.Exchange(attemptCtx, code)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("missing id_token in token response")
	}

	return &TokenSet{
		AccessToken: token.AccessToken,
		RawIDToken:  rawIDToken,
		Expiry:      token.Expiry,
	}, nil
}

// retryable reports whether an exchange error is worth another attempt.
// Provider 4xx responses are client errors: the code is bad, reused, or the
// client is misconfigured, and retrying cannot fix that.
func retryable(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			return retrieveErr.Response.StatusCode >= 500
		}
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Network-level failure or timeout
	return true
}

func (e *Exchanger) recordExchange(status string, started time.Time) {
	if e.metrics != nil {
		e.metrics.TokenExchangeDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
}
