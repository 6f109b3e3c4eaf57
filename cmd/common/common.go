// Package common provides shared utilities for the gt and trackerd commands.
//
// This package contains helper functions used across the command binaries to
// reduce code duplication:
//
//   - Accessory key material resolution from a keyfile or hex flag overrides
//   - Daemon configuration loading from YAML
//   - Store and logger factory functions
//   - JSON and GPX result output
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Enter-tainer/gps-tracker/findmy"
	"github.com/Enter-tainer/gps-tracker/reports"
	"github.com/Enter-tainer/gps-tracker/services"
)

// ResolveAccessory loads Apple key material from a JSON keyfile, or builds
// it from hex flag overrides. Exactly one of keyfile and privateKeyHex must
// be given; the overrides additionally need the symmetric key and epoch.
func ResolveAccessory(keyfile, privateKeyHex, symmetricKeyHex string, epoch int64) (*findmy.Accessory, error) {
	if keyfile != "" && privateKeyHex != "" {
		return nil, errors.New("-k/--keyfile and --private-key are mutually exclusive")
	}
	if keyfile != "" {
		return findmy.LoadAccessory(keyfile)
	}
	if privateKeyHex == "" {
		return nil, errors.New("one of -k/--keyfile or --private-key is required")
	}
	if symmetricKeyHex == "" {
		return nil, errors.New("--symmetric-key is required with --private-key")
	}
	master, err := findmy.NewMasterKeyFromString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	symmetric, err := findmy.NewSymmetricKeyFromString(symmetricKeyHex)
	if err != nil {
		return nil, fmt.Errorf("symmetric key: %w", err)
	}
	return &findmy.Accessory{MasterKey: master, SymmetricKey: symmetric, Epoch: epoch}, nil
}

// NewStore opens the configured report store: PostgreSQL when a database is
// configured, the in-memory store otherwise.
func NewStore(cfg *Config) (services.Store, error) {
	if cfg.Postgres.Database == "" {
		return services.NewInMemoryStore(), nil
	}
	return services.NewPostgresStore(&cfg.Postgres)
}

// NewLogger builds the process logger from the log section. JSON output is
// for service deployments, text for interactive runs.
func NewLogger(cfg LogConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// SaveJSON writes v to path as two-space indented JSON.
func SaveJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteGPX renders the locations as a GPX track and writes it to path. With
// dedupe set, nearby sightings from the same rotation period are collapsed
// first and a notice goes to stderr when that removed anything.
func WriteGPX(locs []reports.Location, path string, dedupe bool) error {
	if dedupe {
		original := len(locs)
		locs = reports.Dedupe(locs, reports.DefaultDedupeRadius)
		if len(locs) != original {
			fmt.Fprintf(os.Stderr, "Deduped %d reports -> %d points\n", original, len(locs))
		}
	}
	if err := os.WriteFile(path, []byte(reports.ToGPX(locs, "")), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "GPX written to %s\n", path)
	return nil
}
