package authn

import "time"

// IdentityClaims is the validated identity extracted from an ID token.
// It is transient: produced by the Validator, consumed by provisioning,
// and never persisted as-is.
type IdentityClaims struct {
	Subject     string
	Email       string
	DisplayName string
	Groups      []string
	Issuer      string
	Audience    []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Nonce       string
}

// ClaimMappings defines which token claims feed each identity field.
// Providers disagree on claim names (Azure AD uses "oid" style claims,
// Okta and Google use the standard set), so the mapping is configuration.
type ClaimMappings struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Groups      string `json:"groups"`
}

// DefaultClaimMappings returns the standard OIDC claim names
func DefaultClaimMappings() ClaimMappings {
	return ClaimMappings{
		Email:       "email",
		DisplayName: "name",
		Groups:      "groups",
	}
}

// getStringValue extracts a string claim, returning "" when absent or not a string
func getStringValue(claims map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if value, ok := claims[key]; ok {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

// getArrayValue extracts a string-array claim, skipping non-string elements
func getArrayValue(claims map[string]interface{}, key string) []string {
	if key == "" {
		return nil
	}
	value, ok := claims[key]
	if !ok {
		return nil
	}
	arr, ok := value.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if str, ok := item.(string); ok {
			result = append(result, str)
		}
	}
	return result
}
