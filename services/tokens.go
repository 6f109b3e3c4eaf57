package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TokenCache mirrors the JSON file written by the Android provisioning flow.
// This toolkit only consumes tokens; obtaining them (account login, AAS and
// ADM exchanges) happens out of band.
type TokenCache struct {
	AndroidID int64  `json:"android_id,omitempty"`
	AASToken  string `json:"aas_token,omitempty"`
	ADMToken  string `json:"adm_token,omitempty"`
	SpotToken string `json:"spot_token,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DefaultTokenCachePath returns the conventional token cache location under
// the user's home directory.
func DefaultTokenCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "google_tokens.json"
	}
	return filepath.Join(home, ".config", "gps-tracker", "google_tokens.json")
}

// LoadTokenCache reads a token cache file.
func LoadTokenCache(path string) (*TokenCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token cache: %w", err)
	}
	var cache TokenCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing token cache: %w", err)
	}
	return &cache, nil
}

// RequireADM returns the device-management bearer token, or an error telling
// the user to run provisioning first.
func (t *TokenCache) RequireADM() (string, error) {
	if t.ADMToken == "" {
		return "", fmt.Errorf("%w: adm_token (run the provisioning flow first)", ErrMissingToken)
	}
	return t.ADMToken, nil
}

// RequireSpot returns the Spot service bearer token.
func (t *TokenCache) RequireSpot() (string, error) {
	if t.SpotToken == "" {
		return "", fmt.Errorf("%w: spot_token (run the provisioning flow first)", ErrMissingToken)
	}
	return t.SpotToken, nil
}
