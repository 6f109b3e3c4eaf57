package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Enter-tainer/gps-tracker/services"
)

// Config is the trackerd configuration, loaded from a YAML file over the
// defaults. At least one keyfile must be set for the daemon to have a
// source to poll.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	Log    LogConfig    `yaml:"log"`
	Keys   KeysConfig   `yaml:"keys"`
	Apple  AppleConfig  `yaml:"apple"`
	Google GoogleConfig `yaml:"google"`
	Poll   PollConfig   `yaml:"poll"`

	// Postgres enables persistent storage when a database name is set;
	// otherwise reports are kept in memory.
	Postgres services.PostgresConfig `yaml:"postgres"`
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	JSON  bool `yaml:"json"`
	Debug bool `yaml:"debug"`
}

// KeysConfig points at the owner keyfiles. An empty path disables that
// network.
type KeysConfig struct {
	FindMy string `yaml:"findmy"`
	FMDN   string `yaml:"fmdn"`
}

// AppleConfig carries the Find My gateway credentials and anisette source.
type AppleConfig struct {
	Auth        string `yaml:"auth"`
	AnisetteURL string `yaml:"anisette_url"`
}

// GoogleConfig points at the device network token cache.
type GoogleConfig struct {
	TokenCache string `yaml:"token_cache"`
}

// PollConfig controls the fetch loop.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	WindowHours  int           `yaml:"window_hours"`
	DedupeRadius float64       `yaml:"dedupe_radius_m"`
}

// DefaultConfig returns a trackerd configuration with conventional defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		Log:         LogConfig{JSON: true},
		Apple: AppleConfig{
			Auth: services.DefaultAuthPath(),
		},
		Google: GoogleConfig{
			TokenCache: services.DefaultTokenCachePath(),
		},
		Poll: PollConfig{
			Interval:    15 * time.Minute,
			WindowHours: 24,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Keys.FindMy == "" && c.Keys.FMDN == "" {
		return fmt.Errorf("at least one of keys.findmy and keys.fmdn must be set")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Poll.WindowHours < 0 {
		return fmt.Errorf("poll.window_hours must not be negative")
	}
	return nil
}
