package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// UserConfig lists the calendar subscriptions of one user. Users listed here
// are also recomputed by the periodic refresh.
type UserConfig struct {
	ID   string      `yaml:"id" json:"id"`
	Name string      `yaml:"name" json:"name"`
	ICS  []ICSConfig `yaml:"ics" json:"ics"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Database backends.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMySQL    = "mysql"
)

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// EngineConfig holds the focus-block engine defaults.
type EngineConfig struct {
	// TargetMinutes is the preferred block length when the user has no
	// optimal focus time preference.
	TargetMinutes int `yaml:"target_minutes" json:"target_minutes"`
	// MinMinutes is the shortest standalone block.
	MinMinutes int `yaml:"min_minutes" json:"min_minutes"`
	// MinSlotMinutes is the shortest free gap reported by availability.
	MinSlotMinutes int `yaml:"min_slot_minutes" json:"min_slot_minutes"`
	// MaxSuggestions caps the suggestions returned per run. It may lower
	// the cap of 5, never raise or disable it.
	MaxSuggestions int `yaml:"max_suggestions" json:"max_suggestions"`
	// SurfaceThreshold is the confidence at which results are surfaced
	// without an explicit request.
	SurfaceThreshold float64 `yaml:"surface_threshold" json:"surface_threshold"`
}

func (e EngineConfig) TargetDuration() time.Duration {
	return time.Duration(e.TargetMinutes) * time.Minute
}

func (e EngineConfig) MinDuration() time.Duration {
	return time.Duration(e.MinMinutes) * time.Minute
}

func (e EngineConfig) MinSlot() time.Duration {
	return time.Duration(e.MinSlotMinutes) * time.Minute
}

// FetchConfig controls ICS subscription fetching.
type FetchConfig struct {
	Attempts       int `yaml:"attempts" json:"attempts"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when a user has no preference
	// (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "0 6 * * *")
	// used for periodic suggestion recomputation. "off" disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of days, starting today, that the
	// periodic refresh plans ahead.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// ICSCacheDir stores fetched ICS bodies and their HTTP cache metadata.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`

	// Users is the list of users with calendar subscriptions.
	Users []UserConfig `yaml:"users" json:"users"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLogLevel    = "info"
	defaultRefreshCron = "0 6 * * *"
	defaultHorizonDays = 7
	defaultICSCacheDir = "./var/ics-cache"
	defaultDSN         = "./var/focuscal.db"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    defaultLogLevel,
		RefreshCron: defaultRefreshCron,
		HorizonDays: defaultHorizonDays,
		ICSCacheDir: defaultICSCacheDir,
		Database: DatabaseConfig{
			Backend: DatabaseSQLite,
			DSN:     defaultDSN,
		},
		Engine: EngineConfig{
			TargetMinutes:    90,
			MinMinutes:       60,
			MinSlotMinutes:   30,
			MaxSuggestions:   5,
			SurfaceThreshold: 0.7,
		},
		Fetch: FetchConfig{
			Attempts:       3,
			TimeoutSeconds: 15,
		},
		Users:     []UserConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = def.ICSCacheDir
	}

	c.Database.Backend = strings.ToLower(c.Database.Backend)
	switch c.Database.Backend {
	case DatabaseSQLite, DatabasePostgres, DatabaseMySQL:
		// ok
	case "":
		c.Database.Backend = DatabaseSQLite
	default:
		// Unknown backend; Connect reports it instead of guessing.
	}
	if c.Database.DSN == "" && c.Database.Backend == DatabaseSQLite {
		c.Database.DSN = def.Database.DSN
	}

	if c.Engine.TargetMinutes <= 0 {
		c.Engine.TargetMinutes = def.Engine.TargetMinutes
	}
	if c.Engine.MinMinutes <= 0 {
		c.Engine.MinMinutes = def.Engine.MinMinutes
	}
	if c.Engine.MinSlotMinutes <= 0 {
		c.Engine.MinSlotMinutes = def.Engine.MinSlotMinutes
	}
	if c.Engine.MaxSuggestions <= 0 || c.Engine.MaxSuggestions > def.Engine.MaxSuggestions {
		c.Engine.MaxSuggestions = def.Engine.MaxSuggestions
	}
	if c.Engine.SurfaceThreshold <= 0 || c.Engine.SurfaceThreshold > 1 {
		c.Engine.SurfaceThreshold = def.Engine.SurfaceThreshold
	}

	if c.Fetch.Attempts <= 0 {
		c.Fetch.Attempts = def.Fetch.Attempts
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = def.Fetch.TimeoutSeconds
	}

	if c.Users == nil {
		c.Users = []UserConfig{}
	}
}

// User returns the configured user with the given ID.
func (c *Config) User(id string) (UserConfig, bool) {
	for _, u := range c.Users {
		if u.ID == id {
			return u, true
		}
	}
	return UserConfig{}, false
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".focuscal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
