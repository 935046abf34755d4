package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen        = ":8080"
	DefaultServerType    = "teamcity"
	DefaultServerVersion = "2024.1"
	DefaultLogLevel      = "info"
)

// Config is the bridge's on-disk configuration.
type Config struct {
	Listen        string       `yaml:"listen,omitempty"`
	ServerURL     string       `yaml:"server_url,omitempty"`
	DatabaseURL   string       `yaml:"database_url,omitempty"`
	LogLevel      string       `yaml:"log_level,omitempty"`
	Identity      string       `yaml:"identity"`
	IdentityFrom  int64        `yaml:"identity_from"`
	ServerType    string       `yaml:"server_type,omitempty"`
	ServerVersion string       `yaml:"server_version,omitempty"`
	StrictCycles  bool         `yaml:"strict_cycles,omitempty"`
	Export        ExportConfig `yaml:"export,omitempty"`
}

// ExportConfig holds the S3 destination used by the export command.
type ExportConfig struct {
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty"`
	S3Region string `yaml:"s3_region,omitempty"`
}

// Load reads the YAML file at path and applies environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return resolve(file), nil
}

// LoadOrInit is Load with identity bootstrap. Only the file contents and the generated identity are
// written back; environment overrides and defaults stay out of the file.
func LoadOrInit(path string, now time.Time) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if file.EnsureIdentity(now) && path != "" {
		if err := file.Save(path); err != nil {
			return nil, err
		}
	}
	return resolve(file), nil
}

// readFile returns the configuration exactly as written in the file, without defaults.
func readFile(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// resolve layers environment overrides and defaults over a copy of the file configuration.
func resolve(file *Config) *Config {
	cfg := *file
	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	cfg.ServerURL = NormalizeServerURL(cfg.ServerURL)
	return &cfg
}

// EnsureIdentity generates a server identity when none is configured and reports whether it did.
func (c *Config) EnsureIdentity(now time.Time) bool {
	if c.Identity != "" {
		return false
	}
	c.Identity = uuid.NewString()
	c.IdentityFrom = now.UnixMilli()
	return true
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// NormalizeServerURL trims one trailing slash.
func NormalizeServerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	return strings.TrimSuffix(raw, "/")
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getenv("OCTANE_BRIDGE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := getenv("OCTANE_BRIDGE_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := getenv("OCTANE_BRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("OCTANE_BRIDGE_STRICT_CYCLES"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			cfg.StrictCycles = strict
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.ServerType == "" {
		cfg.ServerType = DefaultServerType
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = DefaultServerVersion
	}
}
