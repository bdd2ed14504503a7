// Package config loads the rfpresence configuration from a TOML file, a
// .env file and RFPRESENCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/genricoloni/rfpresence/internal/domain"
	"github.com/genricoloni/rfpresence/internal/monitor"
	"github.com/genricoloni/rfpresence/internal/presence"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "RFPRESENCE_"

	// EnvConfig names the environment variable holding the config file path
	EnvConfig = envPrefix + "CONFIG"

	configRelPath = "rfpresence/config.toml"
	dotEnvFile    = ".env"

	defaultClientID          = "1346614173517221940"
	defaultPollInterval      = 5 * time.Second
	defaultUpdateInterval    = 15 * time.Second
	defaultMinUpdateInterval = 4 * time.Second
)

// Log formats accepted by log_format
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// AppConfig holds application configuration
type AppConfig struct {
	ClientID          string        `toml:"client_id"`
	Source            string        `toml:"source"`
	Player            string        `toml:"player"`
	StatusURL         string        `toml:"status_url"`
	StatusFile        string        `toml:"status_file"`
	PollInterval      time.Duration `toml:"poll_interval"`
	UpdateInterval    time.Duration `toml:"update_interval"`
	MinUpdateInterval time.Duration `toml:"min_update_interval"`
	LogLevel          string        `toml:"log_level"`
	LogFormat         string        `toml:"log_format"`

	Presence presence.Profile `toml:"presence"`

	path string
}

var _ domain.Config = (*AppConfig)(nil)

// Default returns the built-in configuration
func Default() *AppConfig {
	return &AppConfig{
		ClientID:          defaultClientID,
		Source:            monitor.SourceMPRIS,
		Player:            monitor.BrowserPlayers,
		PollInterval:      defaultPollInterval,
		UpdateInterval:    defaultUpdateInterval,
		MinUpdateInterval: defaultMinUpdateInterval,
		LogLevel:          "info",
		LogFormat:         FormatJSON,
		Presence:          presence.DefaultProfile(),
	}
}

// Load builds the configuration. Sources, later ones winning: defaults, the
// config file, a .env file in the working directory, RFPRESENCE_* variables.
//
// The file is path when given, else $RFPRESENCE_CONFIG, else
// rfpresence/config.toml in the XDG config dirs. An explicitly named file
// must exist; the XDG one is optional.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", dotEnvFile, err)
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		if found, err := xdg.SearchConfigFile(configRelPath); err == nil {
			path = found
		}
	}

	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) decodeFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.path = path
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *AppConfig) error {
	strs := map[string]*string{
		"CLIENT_ID":   &cfg.ClientID,
		"SOURCE":      &cfg.Source,
		"PLAYER":      &cfg.Player,
		"STATUS_URL":  &cfg.StatusURL,
		"STATUS_FILE": &cfg.StatusFile,
		"LOG_LEVEL":   &cfg.LogLevel,
		"LOG_FORMAT":  &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL":       &cfg.PollInterval,
		"UPDATE_INTERVAL":     &cfg.UpdateInterval,
		"MIN_UPDATE_INTERVAL": &cfg.MinUpdateInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(envPrefix + key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}

	return nil
}

// Validate reports every problem in the configuration at once
func (c *AppConfig) Validate() error {
	var errs []error

	if c.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}

	switch c.Source {
	case monitor.SourceMPRIS:
	case monitor.SourceHTTP:
		if c.StatusURL == "" {
			errs = append(errs, errors.New("status_url is required for the http source"))
		} else if u, err := url.Parse(c.StatusURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("status_url %q is not an http(s) URL", c.StatusURL))
		}
	case monitor.SourceFile:
		if c.StatusFile == "" {
			errs = append(errs, errors.New("status_file is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q (want %s, %s or %s)",
			c.Source, monitor.SourceMPRIS, monitor.SourceHTTP, monitor.SourceFile))
	}

	for name, d := range map[string]time.Duration{
		"poll_interval":       c.PollInterval,
		"update_interval":     c.UpdateInterval,
		"min_update_interval": c.MinUpdateInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level: %w", err))
	}
	if c.LogFormat != FormatJSON && c.LogFormat != FormatConsole {
		errs = append(errs, fmt.Errorf("log_format must be %s or %s, got %q", FormatJSON, FormatConsole, c.LogFormat))
	}

	if n := len(c.Presence.Buttons); n > domain.MaxButtons {
		errs = append(errs, fmt.Errorf("at most %d presence buttons are allowed, got %d", domain.MaxButtons, n))
	}
	for i, b := range c.Presence.Buttons {
		if b.Label == "" || b.URL == "" {
			errs = append(errs, fmt.Errorf("presence button %d needs both label and url", i+1))
		}
	}

	return errors.Join(errs...)
}

// Path returns the file the configuration was read from, empty for none
func (c *AppConfig) Path() string {
	return c.path
}

// GetClientID returns the Discord application id
func (c *AppConfig) GetClientID() string {
	return c.ClientID
}

// GetSource returns the status source kind
func (c *AppConfig) GetSource() string {
	return c.Source
}

// GetPlayerFilter returns the comma separated MPRIS bus name filter
func (c *AppConfig) GetPlayerFilter() string {
	return c.Player
}

// GetStatusURL returns the endpoint polled by the http source
func (c *AppConfig) GetStatusURL() string {
	return c.StatusURL
}

// GetStatusFile returns the file watched by the file source
func (c *AppConfig) GetStatusFile() string {
	return c.StatusFile
}

// GetPollInterval returns how often the http source polls
func (c *AppConfig) GetPollInterval() time.Duration {
	return c.PollInterval
}

// GetUpdateInterval returns how often the presence is refreshed
func (c *AppConfig) GetUpdateInterval() time.Duration {
	return c.UpdateInterval
}

// GetMinUpdateInterval returns the minimum spacing between activity updates
func (c *AppConfig) GetMinUpdateInterval() time.Duration {
	return c.MinUpdateInterval
}
