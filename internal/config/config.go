// Package config loads process configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, the
// YAML file named by CONFIG_FILE, a .env file, the process environment.
// Template paths and the orders root may also come from the settings file
// (impostazioni.json) shared with the desktop tools; explicit values win.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Counter backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	Env      string `yaml:"env"`

	DataDir         string `yaml:"data_dir"`
	OrdersRoot      string `yaml:"orders_root"`
	SettingsFile    string `yaml:"settings_file"`
	TemplateEntrata string `yaml:"template_entrata"`
	TemplateUscita  string `yaml:"template_uscita"`
	RegisterPath    string `yaml:"register_path"`

	DatabaseURL    string `yaml:"database_url"`
	CounterBackend string `yaml:"counter_backend"`

	DebounceWindow  time.Duration `yaml:"debounce_window"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	LockStaleAfter  time.Duration `yaml:"lock_stale_after"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	RequireOutbound bool          `yaml:"require_outbound"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Settings mirrors impostazioni.json.
type Settings struct {
	MasterEntrata string `json:"masterBolleEntrata"`
	MasterUscita  string `json:"masterBolleUscita"`
	OrdersRoot    string `json:"percorsoCartella"`
	RegisterPath  string `json:"reportDdtPath"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		Env:             "development",
		DataDir:         "data",
		CounterBackend:  BackendFile,
		DebounceWindow:  15 * time.Second,
		RetryDelay:      2 * time.Second,
		LockStaleAfter:  2 * time.Minute,
		PollInterval:    5 * time.Second,
		RequireOutbound: true,
		CORSOrigins:     []string{"*"},
	}
}

// Load builds the configuration from every source.
func Load() (Config, error) {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.mergeSettings(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Development reports whether APP_ENV selects development logging.
func (c Config) Development() bool { return c.Env == "development" }

// LockDir is where lock sentinels live.
func (c Config) LockDir() string { return filepath.Join(c.DataDir, "locks") }

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.CounterBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("COUNTER_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown COUNTER_BACKEND %q", c.CounterBackend)
	}
	if c.DataDir == "" {
		return errors.New("DATA_DIR is empty")
	}
	if c.DebounceWindow <= 0 {
		return errors.New("DEBOUNCE_WINDOW must be positive")
	}
	return nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("APP_PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("APP_ENV", &c.Env)
	str("DATA_DIR", &c.DataDir)
	str("ORDERS_ROOT", &c.OrdersRoot)
	str("SETTINGS_FILE", &c.SettingsFile)
	str("TEMPLATE_ENTRATA", &c.TemplateEntrata)
	str("TEMPLATE_USCITA", &c.TemplateUscita)
	str("DDT_REGISTER_PATH", &c.RegisterPath)
	str("DATABASE_URL", &c.DatabaseURL)
	str("COUNTER_BACKEND", &c.CounterBackend)
	c.CounterBackend = strings.ToLower(c.CounterBackend)

	for key, dst := range map[string]*time.Duration{
		"DEBOUNCE_WINDOW":  &c.DebounceWindow,
		"RETRY_DELAY":      &c.RetryDelay,
		"LOCK_STALE_AFTER": &c.LockStaleAfter,
		"POLL_INTERVAL":    &c.PollInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(getenv("REQUIRE_OUTBOUND")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQUIRE_OUTBOUND: %w", err)
		}
		c.RequireOutbound = b
	}
	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	return nil
}

// mergeSettings fills unset template, root and register paths from the settings file.
func (c *Config) mergeSettings() error {
	if c.SettingsFile == "" {
		return nil
	}
	s, err := LoadSettings(c.SettingsFile)
	if err != nil {
		return err
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&c.TemplateEntrata, s.MasterEntrata)
	fill(&c.TemplateUscita, s.MasterUscita)
	fill(&c.OrdersRoot, s.OrdersRoot)
	fill(&c.RegisterPath, s.RegisterPath)
	return nil
}

// LoadSettings reads impostazioni.json. A missing file yields empty settings;
// generation will then report the missing template.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}
