// ABOUTME: Configuration for the pipeline dashboard client
// ABOUTME: Loads XDG config, .env files, and PIPEDASH_* overrides; generates a device id on first save

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
)

const (
	AppName        = "pipedash"
	ConfigFileName = "config.json"

	DefaultAPIURL         = "http://127.0.0.1:8080"
	DefaultCommandTimeout = 15 * time.Second
	DefaultPolicy         = "queue"
	DefaultStreamBuffer   = 64
	DefaultRecentCapacity = 200
	DefaultQueueCap       = 50
	DefaultJournalTTL     = 72 * time.Hour
)

// Config holds backend endpoints, credentials, and engine tuning.
type Config struct {
	APIURL    string `json:"api_url"`
	StreamURL string `json:"stream_url,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	CommandTimeout time.Duration `json:"command_timeout,omitempty"`
	// SameIDPolicy is "queue" or "reject".
	SameIDPolicy   string `json:"same_id_policy,omitempty"`
	StreamBuffer   int    `json:"stream_buffer,omitempty"`
	RecentCapacity int    `json:"recent_capacity,omitempty"`
	QueueCap       int    `json:"queue_cap,omitempty"`

	JournalDir string        `json:"journal_dir,omitempty"`
	JournalTTL time.Duration `json:"journal_ttl,omitempty"`

	LogEnv   string `json:"log_env,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty"`

	DeviceID string `json:"device_id,omitempty"`
}

// Dir returns the XDG config directory for the app.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the config file, then envFiles (".env" when none are given),
// then PIPEDASH_* environment variables. Missing files are not errors.
func Load(envFiles ...string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(Path())
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"PIPEDASH_API_URL":        &cfg.APIURL,
		"PIPEDASH_STREAM_URL":     &cfg.StreamURL,
		"PIPEDASH_ACCESS_TOKEN":   &cfg.AccessToken,
		"PIPEDASH_REFRESH_TOKEN":  &cfg.RefreshToken,
		"PIPEDASH_TOKEN_URL":      &cfg.TokenURL,
		"PIPEDASH_CLIENT_ID":      &cfg.ClientID,
		"PIPEDASH_CLIENT_SECRET":  &cfg.ClientSecret,
		"PIPEDASH_SAME_ID_POLICY": &cfg.SameIDPolicy,
		"PIPEDASH_JOURNAL_DIR":    &cfg.JournalDir,
		"PIPEDASH_LOG_ENV":        &cfg.LogEnv,
		"PIPEDASH_LOG_LEVEL":      &cfg.LogLevel,
		"PIPEDASH_LOG_FILE":       &cfg.LogFile,
		"PIPEDASH_DEVICE_ID":      &cfg.DeviceID,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PIPEDASH_STREAM_BUFFER":   &cfg.StreamBuffer,
		"PIPEDASH_RECENT_CAPACITY": &cfg.RecentCapacity,
		"PIPEDASH_QUEUE_CAP":       &cfg.QueueCap,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"PIPEDASH_COMMAND_TIMEOUT": &cfg.CommandTimeout,
		"PIPEDASH_JOURNAL_TTL":     &cfg.JournalTTL,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.SameIDPolicy != "queue" && c.SameIDPolicy != "reject" {
		c.SameIDPolicy = DefaultPolicy
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = DefaultStreamBuffer
	}
	if c.RecentCapacity <= 0 {
		c.RecentCapacity = DefaultRecentCapacity
	}
	if c.QueueCap <= 0 {
		c.QueueCap = DefaultQueueCap
	}
	if c.JournalDir == "" {
		c.JournalDir = filepath.Join(xdg.DataHome, AppName, "journal")
	}
	if c.JournalTTL <= 0 {
		c.JournalTTL = DefaultJournalTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(xdg.StateHome, AppName, AppName+".log")
	}
}

// Validate checks the endpoints parse.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api url: %q", c.APIURL)
	}
	if c.StreamURL != "" {
		u, err := url.Parse(c.StreamURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("invalid stream url: %q", c.StreamURL)
		}
	}
	return nil
}

// CanRefresh reports whether an OAuth2 refresh is configured.
func (c *Config) CanRefresh() bool {
	return c.RefreshToken != "" && c.TokenURL != "" && c.ClientID != ""
}

// Save writes the config with owner-only permissions, assigning a device id
// on first save.
func (c *Config) Save() error {
	if c.DeviceID == "" {
		c.DeviceID = GenerateDeviceID()
	}
	if err := os.MkdirAll(Dir(), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDeviceID returns a new ULID identifying this install.
func GenerateDeviceID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
