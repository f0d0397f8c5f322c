// Package config holds the planner's YAML configuration. The first Load
// of a missing file writes the defaults with 0600 permissions.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultTimezone        = "Local"
	DefaultReminderMinutes = 15
	DefaultReminderCron    = "@every 10s"
	DefaultRetention       = 24 * time.Hour
	DefaultListDays        = 14
)

// BasicAuthConfig is the single credential accepted by the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ReminderConfig controls the reminder scanner.
type ReminderConfig struct {
	// Schedule is a cron-style spec for the scan cadence. It must not be
	// coarser than one minute.
	Schedule string `yaml:"schedule" json:"schedule"`

	// Retention is how long a fired reminder is remembered after its
	// occurrence started.
	Retention time.Duration `yaml:"retention" json:"retention"`

	// DefaultMinutes is applied to imported tasks without a reminder.
	DefaultMinutes int `yaml:"default_minutes" json:"default_minutes"`

	// WebhookURL, if set, receives a JSON POST for every reminder.
	WebhookURL string `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
}

// StorageConfig selects where the task list lives.
type StorageConfig struct {
	// Driver is one of "file", "sqlite" or "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Path is the JSON file or SQLite database path.
	Path string `yaml:"path" json:"path"`
}

type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "today" and view windows.
	// "Local" uses the host's zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// ListDays is the span of the list view.
	ListDays int `yaml:"list_days" json:"list_days"`

	Reminder ReminderConfig `yaml:"reminder" json:"reminder"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`

	// ICSCacheDir holds the HTTP cache for calendars imported by URL.
	ICSCacheDir string `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth guards every route but /health when set.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:    DefaultListen,
		Timezone:  DefaultTimezone,
		WeekStart: "monday",
		ListDays:  DefaultListDays,
		Reminder: ReminderConfig{
			Schedule:       DefaultReminderCron,
			Retention:      DefaultRetention,
			DefaultMinutes: DefaultReminderMinutes,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "./var/tasks.json",
		},
		ICSCacheDir: "./var/ics-cache",
		LogLevel:    "info",
	}
}

// Normalize replaces empty or unknown values with their defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()

	setDefault(&c.Listen, def.Listen)
	setDefault(&c.Timezone, def.Timezone)
	setDefault(&c.Reminder.Schedule, def.Reminder.Schedule)
	setDefault(&c.ICSCacheDir, def.ICSCacheDir)
	setDefault(&c.LogLevel, def.LogLevel)

	if c.WeekStart != "monday" && c.WeekStart != "sunday" {
		c.WeekStart = def.WeekStart
	}
	if c.ListDays <= 0 {
		c.ListDays = def.ListDays
	}
	if c.Reminder.Retention <= 0 {
		c.Reminder.Retention = def.Reminder.Retention
	}
	if c.Reminder.DefaultMinutes <= 0 {
		c.Reminder.DefaultMinutes = def.Reminder.DefaultMinutes
	}

	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Path == "" && c.Storage.Driver == "sqlite" {
		c.Storage.Path = "./var/tasks.db"
	}
	setDefault(&c.Storage.Path, def.Storage.Path)
}

func setDefault(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load reads the YAML file at path. A missing file is created with the
// defaults; if that write fails the defaults are still returned alongside
// the error. PLANNER_* overrides are applied last and never persisted.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = Save(path, cfg)
		cfg.ApplyEnv()
		return cfg, err
	case err != nil:
		return nil, err
	}

	cfg = &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the environment. Variables that
// are already set win, and missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides selected fields from PLANNER_* variables, then
// normalizes.
func (c *Config) ApplyEnv() {
	overrides := map[string]*string{
		"PLANNER_LISTEN":         &c.Listen,
		"PLANNER_TIMEZONE":       &c.Timezone,
		"PLANNER_STORAGE_DRIVER": &c.Storage.Driver,
		"PLANNER_STORAGE_PATH":   &c.Storage.Path,
		"PLANNER_LOG_LEVEL":      &c.LogLevel,
		"PLANNER_WEBHOOK_URL":    &c.Reminder.WebhookURL,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	c.Normalize()
}

// Save normalizes cfg and writes it as YAML with WriteFileAtomic.
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
	return WriteFileAtomic(path, data, ".planner-config-*.tmp")
}

// WriteFileAtomic replaces path with data through a synced temp file in the
// same directory. The result is 0600; a missing parent is created 0700.
func WriteFileAtomic(path string, data []byte, pattern string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
