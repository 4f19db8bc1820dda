/*
Package config loads ledger settings.

PRECEDENCE (highest first):
  1. LEDGER_* environment variables (LEDGER_SERVER_PORT, LEDGER_LOCATIONS=a,b)
  2. .env file in the working directory, if present
  3. Config file passed to Load (YAML or JSON)
  4. Defaults
*/
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/warp/stock-ledger/ledger"
)

const EnvPrefix = "LEDGER"

// Config represents the complete application configuration
type Config struct {
	DataFile         string   `mapstructure:"data_file" yaml:"data_file" json:"data_file"`
	Store            string   `mapstructure:"store" yaml:"store" json:"store"` // "json" or "sqlite"
	SQLitePath       string   `mapstructure:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path"`
	Locations        []string `mapstructure:"locations" yaml:"locations" json:"locations"`
	DefaultEmployees int      `mapstructure:"default_employees" yaml:"default_employees" json:"default_employees"`
	ZeroCostReceipts string   `mapstructure:"zero_cost_receipts" yaml:"zero_cost_receipts" json:"zero_cost_receipts"`
	OnCorrupt        string   `mapstructure:"on_corrupt" yaml:"on_corrupt" json:"on_corrupt"`
	DisplayUnit      string   `mapstructure:"display_unit" yaml:"display_unit" json:"display_unit"`

	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

// ServerConfig contains HTTP server parameters
type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// LogConfig contains logging parameters
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`   // zerolog level name
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "console" or "json"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DataFile:         "ledger_data.json",
		Store:            "json",
		SQLitePath:       "ledger.db",
		Locations:        []string{"vault", "will", "luke"},
		DefaultEmployees: ledger.DefaultEmployees,
		ZeroCostReceipts: string(ledger.ZeroCostKeep),
		OnCorrupt:        string(ledger.CorruptReset),
		DisplayUnit:      string(ledger.UnitGrams),
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8501"},
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from defaults, an optional file, .env and the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_file", d.DataFile)
	v.SetDefault("store", d.Store)
	v.SetDefault("sqlite_path", d.SQLitePath)
	v.SetDefault("locations", d.Locations)
	v.SetDefault("default_employees", d.DefaultEmployees)
	v.SetDefault("zero_cost_receipts", d.ZeroCostReceipts)
	v.SetDefault("on_corrupt", d.OnCorrupt)
	v.SetDefault("display_unit", d.DisplayUnit)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.ZeroCostReceipts = strings.ToLower(strings.TrimSpace(c.ZeroCostReceipts))
	c.OnCorrupt = strings.ToLower(strings.TrimSpace(c.OnCorrupt))
	locs := make([]string, 0, len(c.Locations))
	for _, l := range c.Locations {
		if id := string(ledger.ParseLocation(l)); id != "" {
			locs = append(locs, id)
		}
	}
	c.Locations = locs
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case "json":
		if c.DataFile == "" {
			errs = append(errs, errors.New("data_file is required for the json store"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store must be 'json' or 'sqlite', got %q", c.Store))
	}

	if len(c.Locations) == 0 {
		errs = append(errs, errors.New("at least one location is required"))
	}
	seen := make(map[string]bool, len(c.Locations))
	for _, l := range c.Locations {
		if seen[l] {
			errs = append(errs, fmt.Errorf("duplicate location %q", l))
		}
		seen[l] = true
		if err := ledger.ValidateLocation(ledger.Location(l)); err != nil {
			errs = append(errs, fmt.Errorf("locations: %w", err))
		}
	}

	if c.DefaultEmployees < 0 {
		errs = append(errs, errors.New("default_employees must not be negative"))
	}
	switch ledger.ZeroCostPolicy(c.ZeroCostReceipts) {
	case ledger.ZeroCostKeep, ledger.ZeroCostDilute:
	default:
		errs = append(errs, fmt.Errorf("zero_cost_receipts must be 'keep' or 'dilute', got %q", c.ZeroCostReceipts))
	}
	switch ledger.CorruptPolicy(c.OnCorrupt) {
	case ledger.CorruptReset, ledger.CorruptRefuse:
	default:
		errs = append(errs, fmt.Errorf("on_corrupt must be 'reset' or 'refuse', got %q", c.OnCorrupt))
	}
	if _, err := ledger.ParseUnit(c.DisplayUnit); err != nil {
		errs = append(errs, fmt.Errorf("display_unit: %w", err))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	return errors.Join(errs...)
}

// =============================================================================
// TYPED ACCESSORS
// =============================================================================

// LedgerOptions returns the Recorder options this configuration describes.
func (c *Config) LedgerOptions() ledger.Options {
	employees := c.DefaultEmployees
	return ledger.Options{
		Locations:        ledger.ParseLocations(c.Locations),
		DefaultEmployees: &employees,
		ZeroCost:         ledger.ZeroCostPolicy(c.ZeroCostReceipts),
		OnCorrupt:        ledger.CorruptPolicy(c.OnCorrupt),
	}
}

// Unit returns the display unit, falling back to grams.
func (c *Config) Unit() ledger.Unit {
	u, err := ledger.ParseUnit(c.DisplayUnit)
	if err != nil {
		return ledger.UnitGrams
	}
	return u
}

// =============================================================================
// FILES
// =============================================================================

// SaveToFile writes the configuration as YAML (.yaml/.yml) or JSON.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
