package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models baulot.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	BasePath        string   `yaml:"base_path"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"-"` // env-only
	Issuer    string   `yaml:"issuer"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

// Limit is a token bucket: Rate tokens per Every, bursting up to Burst.
type Limit struct {
	Rate  int      `yaml:"rate"`
	Every Duration `yaml:"every"`
	Burst int      `yaml:"burst"`
}

type RateLimitConfig struct {
	Login  Limit `yaml:"login"`
	Upload Limit `yaml:"upload"`
}

type StorageConfig struct {
	Driver       string   `yaml:"driver"`
	LocalDir     string   `yaml:"local_dir"`
	PublicURL    string   `yaml:"public_url"` // s3 only; empty means pre-signed URLs
	Endpoint     string   `yaml:"endpoint"`
	Bucket       string   `yaml:"bucket"`
	Region       string   `yaml:"region"`
	UseSSL       *bool    `yaml:"use_ssl"`
	AccessKey    string   `yaml:"-"` // env-only
	SecretKey    string   `yaml:"-"` // env-only
	MaxPhotoSize int64    `yaml:"max_photo_size"`
	URLExpiry    Duration `yaml:"url_expiry"`
}

type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
	TimeZone        string `yaml:"time_zone"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration is a time.Duration read from YAML strings such as "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Validate ensures the config is usable for serving.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	for name, l := range map[string]Limit{"login": c.RateLimit.Login, "upload": c.RateLimit.Upload} {
		if l.Rate <= 0 || l.Every <= 0 || l.Burst <= 0 {
			return fmt.Errorf("config.rate_limit.%s needs positive rate, every and burst", name)
		}
	}
	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("config.storage.local_dir is required for the local driver")
		}
	case StorageS3:
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("config.storage.endpoint and bucket are required for the s3 driver")
		}
	case "":
	default:
		return fmt.Errorf("config.storage.driver must be local or s3, got %q", c.Storage.Driver)
	}
	if c.Storage.MaxPhotoSize <= 0 {
		return fmt.Errorf("config.storage.max_photo_size must be positive")
	}
	if c.Calendar.CredentialsFile != "" && c.Calendar.CalendarID == "" {
		return fmt.Errorf("config.calendar.calendar_id is required with credentials_file")
	}
	if c.Calendar.TimeZone != "" {
		if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
			return fmt.Errorf("config.calendar.time_zone: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config as YAML text.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML overlays raw YAML on the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  read_timeout: 15s
  write_timeout: 60s
  shutdown_timeout: 10s

database:
  path: data/baulot.db

auth:
  issuer: baulot
  token_ttl: 12h

rate_limit:
  login:
    rate: 5
    every: 1m
    burst: 5
  upload:
    rate: 30
    every: 1m
    burst: 10

storage:
  driver: local
  local_dir: data/photos
  max_photo_size: 10485760
  url_expiry: 1h

calendar:
  time_zone: Europe/Berlin

log:
  level: info
`
