package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMemory  = "memory"
)

// DefaultAdminScope is the JWT scope required on admin routes.
const DefaultAdminScope = "rwalend:admin"

// Config captures the runtime settings for the rwalend daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	GenesisPath   string          `yaml:"genesis"`
	ReadTimeout   time.Duration   `yaml:"readTimeout"`
	WriteTimeout  time.Duration   `yaml:"writeTimeout"`
	IdleTimeout   time.Duration   `yaml:"idleTimeout"`
	Storage       StorageConfig   `yaml:"storage"`
	Auth          AuthConfig      `yaml:"auth"`
	Signatures    SignatureConfig `yaml:"signatures"`
	RateLimits    []RateLimit     `yaml:"rateLimits"`
	Audit         AuditConfig     `yaml:"audit"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects where protocol state lives.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig configures bearer tokens for the admin surface.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HMACSecret string        `yaml:"hmacSecret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scopeClaim"`
	AdminScope string        `yaml:"adminScope"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
}

// SignatureConfig governs the account signature headers on user routes.
type SignatureConfig struct {
	TimestampSkew time.Duration `yaml:"timestampSkew"`
	NonceTTL      time.Duration `yaml:"nonceTTL"`
	NonceCapacity int           `yaml:"nonceCapacity"`
	NonceStore    string        `yaml:"nonceStore"`
}

// RateLimit applies to one route group (cdp, pool, token, admin, oracle).
type RateLimit struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

// AuditConfig points the event sink at a database. Empty disables it.
type AuditConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig overrides the OTEL_EXPORTER_OTLP_* environment.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure *bool  `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
}

var ErrAuthSecretMissing = errors.New("auth.hmacSecret is required when auth is enabled")

func defaults() Config {
	return Config{
		ListenAddress: ":8080",
		GenesisPath:   "genesis.toml",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Storage:       StorageConfig{Backend: BackendLevelDB, Path: "rwalend-data/state"},
		Auth: AuthConfig{
			Enabled:    true,
			ScopeClaim: "scope",
			AdminScope: DefaultAdminScope,
			ClockSkew:  2 * time.Minute,
		},
		Signatures: SignatureConfig{
			TimestampSkew: 2 * time.Minute,
			NonceTTL:      10 * time.Minute,
			NonceCapacity: 4096,
		},
		Telemetry: TelemetryConfig{Metrics: true, Traces: true},
	}
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Auth.normalize()
	cfg.Signatures.normalize()

	limits := make([]RateLimit, 0, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		limit.ID = strings.ToLower(strings.TrimSpace(limit.ID))
		if limit.ID != "" {
			limits = append(limits, limit)
		}
	}
	cfg.RateLimits = limits
	cfg.Audit.DSN = strings.TrimSpace(cfg.Audit.DSN)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.GenesisPath == "" {
		return fmt.Errorf("genesis: path required")
	}
	switch cfg.Storage.Backend {
	case BackendLevelDB, BackendBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s", cfg.Storage.Backend)
		}
	case BackendMemory:
		if cfg.Environment != "dev" {
			return fmt.Errorf("storage: memory backend is restricted to env=dev")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.RateLimits))
	for _, limit := range cfg.RateLimits {
		if _, dup := seen[limit.ID]; dup {
			return fmt.Errorf("rateLimits: duplicate id %q", limit.ID)
		}
		seen[limit.ID] = struct{}{}
		if limit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rateLimits.%s: requestsPerMinute must be positive", limit.ID)
		}
	}
	if dsn := cfg.Audit.DSN; dsn != "" && !strings.HasPrefix(dsn, "sqlite:") && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("audit: dsn must start with sqlite: or postgres://")
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.ScopeClaim = strings.TrimSpace(cfg.ScopeClaim)
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	cfg.AdminScope = strings.TrimSpace(cfg.AdminScope)
	if cfg.AdminScope == "" {
		cfg.AdminScope = DefaultAdminScope
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg AuthConfig) validate() error {
	if cfg.Enabled && cfg.HMACSecret == "" {
		return ErrAuthSecretMissing
	}
	return nil
}

func (cfg *SignatureConfig) normalize() {
	if cfg.TimestampSkew <= 0 {
		cfg.TimestampSkew = 2 * time.Minute
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = 10 * time.Minute
	}
	if cfg.NonceCapacity <= 0 {
		cfg.NonceCapacity = 4096
	}
	cfg.NonceStore = strings.TrimSpace(cfg.NonceStore)
}

// Limit returns the rate limit configured for id.
func (cfg Config) Limit(id string) (RateLimit, bool) {
	for _, limit := range cfg.RateLimits {
		if limit.ID == id {
			return limit, true
		}
	}
	return RateLimit{}, false
}
