package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Enter-tainer/gps-tracker/reports"
)

var (
	// ErrRemoteUnavailable is returned when an upstream endpoint answers
	// with a non-2xx status.
	ErrRemoteUnavailable = errors.New("upstream service unavailable")

	// ErrMissingToken is returned when the token cache lacks the bearer
	// token a request needs.
	ErrMissingToken = errors.New("token cache is missing a required token")

	// ErrNoKeyMaterial is returned when an operation needs an accessory or
	// identity key that was not configured.
	ErrNoKeyMaterial = errors.New("no key material configured")
)

// AppleAuth carries the Apple account credentials used for gateway basic
// auth.
type AppleAuth struct {
	DSID             string `json:"dsid"`
	SearchPartyToken string `json:"searchPartyToken"`
}

// DefaultAuthPath returns the conventional auth file location under the
// user's home directory.
func DefaultAuthPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "auth.json"
	}
	return filepath.Join(home, ".config", "gps-tracker", "auth.json")
}

// LoadAppleAuth reads an auth file written by the account login flow.
func LoadAppleAuth(path string) (*AppleAuth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading auth file: %w", err)
	}
	var auth AppleAuth
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("parsing auth file: %w", err)
	}
	if auth.DSID == "" || auth.SearchPartyToken == "" {
		return nil, errors.New("auth file needs both dsid and searchPartyToken")
	}
	return &auth, nil
}

// RawReport is one sealed report as returned by the Find My gateway.
type RawReport struct {
	ID            string `json:"id"`
	Payload       string `json:"payload"`
	DatePublished int64  `json:"datePublished"`
}

// fetchRequest is the gateway search body. Dates are unix milliseconds.
type fetchRequest struct {
	Search []fetchQuery `json:"search"`
}

type fetchQuery struct {
	StartDate int64    `json:"startDate"`
	EndDate   int64    `json:"endDate"`
	IDs       []string `json:"ids"`
}

type fetchResponse struct {
	Results []RawReport `json:"results"`
}

// LocationsResponse is the JSON body of GET /api/v1/locations.
type LocationsResponse struct {
	Count     int                `json:"count"`
	Locations []reports.Location `json:"locations"`
}

// DeviceSummary describes one device seen in the store.
type DeviceSummary struct {
	Source   reports.Source `json:"source"`
	Name     string         `json:"name,omitempty"`
	Count    int            `json:"count"`
	LastSeen int64          `json:"last_seen"`
}

// DevicesResponse is the JSON body of GET /api/v1/devices.
type DevicesResponse struct {
	Devices []DeviceSummary `json:"devices"`
}

// KeyInfo is one upcoming rolling identifier in GET /api/v1/keys.
type KeyInfo struct {
	Scheme       string `json:"scheme"`
	Counter      int64  `json:"counter,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	HashedAdvKey string `json:"hashed_adv_key,omitempty"`
	BLEAddress   string `json:"ble_address,omitempty"`
	EphemeralID  string `json:"ephemeral_id,omitempty"`
	TruncatedID  string `json:"truncated_id,omitempty"`
}

// KeysResponse is the JSON body of GET /api/v1/keys.
type KeysResponse struct {
	Scheme string    `json:"scheme"`
	Count  int       `json:"count"`
	Keys   []KeyInfo `json:"keys"`
}
