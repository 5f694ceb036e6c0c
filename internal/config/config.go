package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the monitor and of the development hub.
type Config struct {
	// FeedURL is the WebSocket endpoint of the live alert feed.
	FeedURL string `yaml:"feed_url"`
	// APIURL is the base URL of the backend serving /api/logs and /api/arm.
	APIURL string `yaml:"api_url"`
	// TokenFile is where the bearer token is read from (and written by `login`).
	TokenFile string `yaml:"token_file"`
	// Timeout bounds every request/response call (log fetch, arm, login).
	Timeout time.Duration `yaml:"timeout"`
	// Backoff configures feed reconnects.
	Backoff Backoff `yaml:"backoff"`
	// AlertRetention caps the number of alerts kept in memory.
	AlertRetention int `yaml:"alert_retention"`
	// MetricsAddress enables the Prometheus endpoint when set (e.g. ":9102").
	MetricsAddress string `yaml:"metrics_addr"`
	// HealthAddress is the gRPC health endpoint of the hub probed by `check`.
	HealthAddress string `yaml:"health_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Hub holds settings used only by alarm-hub.
	Hub Hub `yaml:"hub"`
}

// Backoff is the reconnect policy of the feed client.
type Backoff struct {
	// Base is the first retry delay.
	Base time.Duration `yaml:"base"`
	// Max caps the retry delay.
	Max time.Duration `yaml:"max"`
	// Stable is how long a connection must stay up before the delay resets to Base.
	Stable time.Duration `yaml:"stable"`
}

// Hub holds the development backend settings.
type Hub struct {
	// ListenAddress is the HTTP listen address for the API and the feed.
	ListenAddress string `yaml:"listen_addr"`
	// HealthAddress is the gRPC health listen address.
	HealthAddress string `yaml:"health_addr"`
	// Database is the SQLite file holding users and the event log.
	Database string `yaml:"database"`
	// StateFile persists the armed state.
	StateFile string `yaml:"state_file"`
	// JWTSecret signs access tokens.
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration `yaml:"token_ttl"`
	// LoginRate is the number of login attempts allowed per minute per client.
	LoginRate int `yaml:"login_rate"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-monitor-settings.yaml"

	// DefaultFeedURL is the alert feed endpoint used when none is configured.
	DefaultFeedURL = "ws://localhost:8000/ws"

	// DefaultAPIURL is the backend base URL used when none is configured.
	DefaultAPIURL = "http://localhost:8000"

	// DefaultTokenFilename is the default bearer token file.
	DefaultTokenFilename = "alarm-monitor-token"

	// DefaultTimeout is the default duration for request/response calls.
	DefaultTimeout = 5 * time.Second

	// DefaultBackoffBase is the first reconnect delay.
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultBackoffMax caps the reconnect delay.
	DefaultBackoffMax = 30 * time.Second

	// DefaultBackoffStable is the uptime after which the reconnect delay resets.
	DefaultBackoffStable = 10 * time.Second

	// DefaultAlertRetention is the number of alerts kept in memory.
	DefaultAlertRetention = 1000

	// DefaultHubListenAddress matches the default feed and API URLs.
	DefaultHubListenAddress = ":8000"

	// DefaultHubDatabase is the default SQLite file of the hub.
	DefaultHubDatabase = "alarm-hub.db"

	// DefaultHubStateFile is the default armed state file of the hub.
	DefaultHubStateFile = "alarm-hub-state.json"

	// DefaultTokenTTL is the default lifetime of issued tokens.
	DefaultTokenTTL = 30 * time.Minute

	// DefaultLoginRate is the default number of login attempts per minute per client.
	DefaultLoginRate = 10

	// DefaultFilePermissions is the default file permission for settings and tokens.
	DefaultFilePermissions = 0o600
)

// Environment variables overriding file settings.
const (
	EnvFeedURL   = "ALARM_FEED_URL"
	EnvAPIURL    = "ALARM_API_URL"
	EnvTokenFile = "ALARM_TOKEN_FILE"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadFeedScheme is returned when the feed URL is not a WebSocket URL.
	errBadFeedScheme = errors.New("feed url must use ws or wss scheme")
	// errBadAPIScheme is returned when the API URL is not an HTTP URL.
	errBadAPIScheme = errors.New("api url must use http or https scheme")
	// errBadBackoff is returned when the backoff cap is below its base.
	errBadBackoff = errors.New("backoff max must not be less than base")
	// errNegativeRetention is returned for a negative alert retention.
	errNegativeRetention = errors.New("alert retention must not be negative")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	// Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path, applies environment
// overrides and validates it. A missing file at the default path yields the
// defaults; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != "" && path != DefaultConfigFilename
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	ApplyEnv(&cfg, os.LookupEnv)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Overrides holds command line values that take precedence over the file
// and the environment. Empty fields are ignored.
type Overrides struct {
	FeedURL   string
	APIURL    string
	TokenFile string
}

// LoadWithOverrides loads path and applies o on top of it.
func LoadWithOverrides(path string, o Overrides) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if o.FeedURL != "" {
		cfg.FeedURL = o.FeedURL
	}

	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}

	if o.TokenFile != "" {
		cfg.TokenFile = o.TokenFile
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Settings may carry the hub JWT secret.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnv overrides endpoint settings from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvFeedURL); ok && strings.TrimSpace(v) != "" {
		cfg.FeedURL = strings.TrimSpace(v)
	}

	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		cfg.APIURL = strings.TrimSpace(v)
	}

	if v, ok := lookup(EnvTokenFile); ok && strings.TrimSpace(v) != "" {
		cfg.TokenFile = strings.TrimSpace(v)
	}
}

// Validate checks the settings and fills defaults for optional fields.
//
//nolint:cyclop // A flat list of defaults reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}

	if err := checkURL(cfg.FeedURL, errBadFeedScheme, "ws", "wss"); err != nil {
		return fmt.Errorf("invalid feed url: %w", err)
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	if err := checkURL(cfg.APIURL, errBadAPIScheme, "http", "https"); err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}

	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFilename
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = DefaultBackoffBase
	}

	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = max(DefaultBackoffMax, cfg.Backoff.Base)
	}

	if cfg.Backoff.Max < cfg.Backoff.Base {
		return errBadBackoff
	}

	if cfg.Backoff.Stable <= 0 {
		cfg.Backoff.Stable = DefaultBackoffStable
	}

	if cfg.AlertRetention < 0 {
		return errNegativeRetention
	}

	if cfg.AlertRetention == 0 {
		cfg.AlertRetention = DefaultAlertRetention
	}

	if cfg.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	if cfg.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddress); err != nil {
			return fmt.Errorf("invalid health address: %w", err)
		}
	}

	return validateHub(&cfg.Hub)
}

// validateHub fills hub defaults and checks addresses.
func validateHub(hub *Hub) error {
	if hub.ListenAddress == "" {
		hub.ListenAddress = DefaultHubListenAddress
	}

	if _, _, err := net.SplitHostPort(hub.ListenAddress); err != nil {
		return fmt.Errorf("invalid hub listen address: %w", err)
	}

	if hub.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(hub.HealthAddress); err != nil {
			return fmt.Errorf("invalid hub health address: %w", err)
		}
	}

	if hub.Database == "" {
		hub.Database = DefaultHubDatabase
	}

	if hub.StateFile == "" {
		hub.StateFile = DefaultHubStateFile
	}

	if hub.TokenTTL <= 0 {
		hub.TokenTTL = DefaultTokenTTL
	}

	if hub.LoginRate <= 0 {
		hub.LoginRate = DefaultLoginRate
	}

	return nil
}

// checkURL parses raw and checks its scheme against the allowed list.
func checkURL(raw string, schemeErr error, schemes ...string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}

	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) {
			if u.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}

			return nil
		}
	}

	return schemeErr
}
