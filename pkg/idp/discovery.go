package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Endpoints holds the provider URLs the flow needs. Values pinned in
// configuration win over discovered ones.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	JWKSURL     string
	UserInfoURL string
}

// Discover resolves provider endpoints from the issuer's OIDC discovery
// document. Called once at startup when endpoints are not pinned in config.
func Discover(ctx context.Context, issuer string, client *http.Client) (*Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %q: %w", issuer, err)
	}

	var extra struct {
		JWKSURL     string `json:"jwks_uri"`
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("reading discovery document: %w", err)
	}

	endpoint := provider.Endpoint()
	return &Endpoints{
		AuthURL:     endpoint.AuthURL,
		TokenURL:    endpoint.TokenURL,
		JWKSURL:     extra.JWKSURL,
		UserInfoURL: extra.UserInfoURL,
	}, nil
}
