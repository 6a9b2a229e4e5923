package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	appLog "weekcal/internal/log"
	"weekcal/internal/week"
)

// NOTE: first run writes a default config with 0600 permissions. Partially
// filled files are normalized on load so older configs keep working.

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayoutConfig tunes the week grid placement.
type LayoutConfig struct {
	// CorrectOffset drops the end-hour term from the timed event top
	// position. Off by default so positions match existing clients.
	CorrectOffset bool `yaml:"correct_offset" json:"correct_offset"`
}

// ExportConfig controls scheduled iCalendar snapshots.
type ExportConfig struct {
	// Cron is a cron-style schedule (e.g. "0 * * * *"). Empty disables
	// scheduled snapshots.
	Cron string `yaml:"cron" json:"cron"`
	// Path is where the snapshot .ics file is written.
	Path string `yaml:"path" json:"path"`
}

// SubscriptionConfig describes a single ICS feed merged into the calendar.
type SubscriptionConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// ImportConfig controls iCalendar import.
type ImportConfig struct {
	// Cron schedules syncing of Subscriptions. Empty disables it.
	Cron string `yaml:"cron" json:"cron"`
	// HorizonDays bounds recurrence expansion, counted forward from now.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
	// BackfillDays includes occurrences this many days in the past.
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone events are interpreted in. Empty means
	// the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday starts the grid. Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DataDir is the Badger directory. Empty keeps events in memory only.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// SeedOnEmpty populates empty storage with the example events.
	SeedOnEmpty *bool `yaml:"seed_on_empty,omitempty" json:"seed_on_empty,omitempty"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`
	Export ExportConfig `yaml:"export" json:"export"`
	Import ImportConfig `yaml:"import" json:"import"`

	// Subscriptions are ICS feeds merged into the calendar on Import.Cron.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// loc caches Location for locName.
	loc     *time.Location
	locName string
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	seed := true
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "",
		WeekStart:   "sunday",
		DataDir:     "./var/weekcal",
		LogLevel:    "info",
		SeedOnEmpty: &seed,
		Export: ExportConfig{
			Cron: "",
			Path: "./var/weekcal-export.ics",
		},
		Import: ImportConfig{
			Cron:         "*/30 * * * *",
			HorizonDays:  90,
			BackfillDays: 7,
		},
		Subscriptions: []SubscriptionConfig{},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.WeekStart {
	case "sunday", "monday":
		// ok
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = "sunday"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SeedOnEmpty == nil {
		seed := true
		c.SeedOnEmpty = &seed
	}
	if c.Export.Path == "" {
		c.Export.Path = "./var/weekcal-export.ics"
	}
	if c.Import.HorizonDays <= 0 {
		c.Import.HorizonDays = 90
	}
	if c.Import.BackfillDays < 0 {
		c.Import.BackfillDays = 0
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	c.Location()
}

// Seed reports whether empty storage should be seeded.
func (c *Config) Seed() bool {
	return c.SeedOnEmpty == nil || *c.SeedOnEmpty
}

// Location resolves Timezone, falling back to time.Local when it is empty
// or unknown. The result is cached until Timezone changes, so an unknown
// zone is reported once.
func (c *Config) Location() *time.Location {
	if c.loc != nil && c.locName == c.Timezone {
		return c.loc
	}

	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		} else {
			loc = l
		}
	}
	c.loc, c.locName = loc, c.Timezone
	return loc
}

// FirstWeekday returns the configured week start.
func (c *Config) FirstWeekday() time.Weekday {
	return week.ParseWeekday(c.WeekStart)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, write a default config (0600) and return it.
//   - Otherwise unmarshal the YAML and normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
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

// Save writes cfg to path atomically via a temp file + rename, with 0600
// permissions on the result.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data next to path and renames it into place.
// Parent directories are created with 0700.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".weekcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
