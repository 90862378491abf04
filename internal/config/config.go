package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultShellCommand is the remove command run by the last deletion strategy.
// The path is interpolated verbatim.
const DefaultShellCommand = `rm -f "{{path}}"`

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"`
}

type LoggingCfg struct {
	Dir          string `yaml:"dir" json:"dir"`
	Level        string `yaml:"level" json:"level"`
	Format       string `yaml:"format" json:"format"`               // json or text
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type DeletionCfg struct {
	ShellCommand        string `yaml:"shell_command" json:"shell_command"`                 // Template, {{path}} is replaced with the target
	ShellTimeoutSeconds int    `yaml:"shell_timeout_seconds" json:"shell_timeout_seconds"` // 0 waits forever
	DisableShell        bool   `yaml:"disable_shell" json:"disable_shell"`
}

type IndexCfg struct {
	Roots                 []string `yaml:"roots" json:"roots"`
	Extensions            []string `yaml:"extensions" json:"extensions"`
	RescanIntervalMinutes int      `yaml:"rescan_interval_minutes" json:"rescan_interval_minutes"`
	MaxFilesPerSecond     int      `yaml:"max_files_per_second" json:"max_files_per_second"`
}

type HistoryCfg struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

type APICfg struct {
	JWTSecret    string   `yaml:"jwt_secret" json:"-"`
	JWTExpiry    string   `yaml:"jwt_expiry" json:"jwt_expiry"`
	RateLimit    *float64 `yaml:"rate_limit" json:"rate_limit"` // requests per second per client, 0 disables
	RateBurst    int      `yaml:"rate_burst" json:"rate_burst"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" json:"max_body_bytes"`
}

type Config struct {
	ListenAddress string        `yaml:"listen_address" json:"listen_address"`
	DatabasePath  string        `yaml:"database_path" json:"database_path"` // SQLite file holding the media index and deletion history
	Prometheus    PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	Logging       LoggingCfg    `yaml:"logging" json:"logging"`
	Deletion      DeletionCfg   `yaml:"deletion" json:"deletion"`
	Index         IndexCfg      `yaml:"index" json:"index"`
	History       HistoryCfg    `yaml:"history" json:"history"`
	API           APICfg        `yaml:"api" json:"api"`
}

var (
	errInvalidPath    = errors.New("path must be absolute")
	errNoPlaceholder  = errors.New("deletion.shell_command must contain {{path}}")
	errNegativeValue  = errors.New("value cannot be negative")
	errInvalidLogging = errors.New("logging.format must be json or text")
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	// Defaults never fail validation.
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}

	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9090
	}

	if c.DatabasePath == "" {
		c.DatabasePath = "/var/lib/media-reaper/media.db"
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "/var/log/media-reaper"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "text"
	case "json", "text":
	default:
		return errInvalidLogging
	}
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30
	}

	if c.Deletion.ShellCommand == "" {
		c.Deletion.ShellCommand = DefaultShellCommand
	}
	if !strings.Contains(c.Deletion.ShellCommand, "{{path}}") {
		return errNoPlaceholder
	}
	if c.Deletion.ShellTimeoutSeconds < 0 {
		return fmt.Errorf("deletion.shell_timeout_seconds: %w", errNegativeValue)
	}

	if len(c.Index.Extensions) == 0 {
		c.Index.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".bmp"}
	}
	for i, ext := range c.Index.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Index.Extensions[i] = ext
	}
	if c.Index.RescanIntervalMinutes <= 0 {
		c.Index.RescanIntervalMinutes = 60
	}
	if c.Index.MaxFilesPerSecond < 0 {
		return fmt.Errorf("index.max_files_per_second: %w", errNegativeValue)
	}

	cleaned := make([]string, 0, len(c.Index.Roots))
	for _, p := range c.Index.Roots {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, cp)
	}
	c.Index.Roots = cleaned

	if c.History.RetentionDays <= 0 {
		c.History.RetentionDays = 90
	}

	if c.API.JWTExpiry == "" {
		c.API.JWTExpiry = "24h"
	}
	if _, err := time.ParseDuration(c.API.JWTExpiry); err != nil {
		return fmt.Errorf("api.jwt_expiry: %w", err)
	}
	if c.API.RateLimit == nil {
		limit := 100.0
		c.API.RateLimit = &limit
	}
	if *c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit: %w", errNegativeValue)
	}
	if c.API.RateBurst <= 0 {
		c.API.RateBurst = 200
	}
	if c.API.MaxBodyBytes <= 0 {
		c.API.MaxBodyBytes = 1 << 20
	}

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Index.RescanIntervalMinutes) * time.Minute
}

func (c *Config) ShellTimeout() time.Duration {
	return time.Duration(c.Deletion.ShellTimeoutSeconds) * time.Second
}

// RequestRate is the per-client request rate; 0 means unlimited
func (c *Config) RequestRate() float64 {
	if c.API.RateLimit == nil {
		return 0
	}
	return *c.API.RateLimit
}

func (c *Config) JWTExpiry() time.Duration {
	d, err := time.ParseDuration(c.API.JWTExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) PrometheusAddress() string {
	return fmt.Sprintf(":%d", c.Prometheus.Port)
}
