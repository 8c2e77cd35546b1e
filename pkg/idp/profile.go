package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// ProfileFetcher retrieves additional user attributes from the provider's
// userinfo endpoint. Optional: a flow without a configured endpoint skips
// enrichment entirely.
type ProfileFetcher struct {
	endpoint string
	client   *http.Client
	logger   *observability.Logger
}

// NewProfileFetcher creates a userinfo fetcher. An empty endpoint disables it.
func NewProfileFetcher(endpoint string, client *http.Client, logger *observability.Logger) *ProfileFetcher {
	if client == nil {
		client = NewHTTPClient(10 * time.Second)
	}
	return &ProfileFetcher{
		endpoint: endpoint,
		client:   client,
		logger:   logger.WithComponent("profile"),
	}
}

// Enabled reports whether a userinfo endpoint is configured
func (p *ProfileFetcher) Enabled() bool {
	return p.endpoint != ""
}

// Profile fetches userinfo claims with the given bearer token
func (p *ProfileFetcher) Profile(ctx context.Context, accessToken string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo fetch failed with status %d", resp.StatusCode)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("parsing userinfo response: %w", err)
	}
	return claims, nil
}
