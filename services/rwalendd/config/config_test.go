package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
auth:
  enabled: true
  hmacSecret: " secret "
rateLimits:
  - id: " CDP "
    requestsPerMinute: 120
    burst: 10
  - id: " "
    requestsPerMinute: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Storage.Backend != BackendLevelDB || cfg.Storage.Path == "" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Auth.HMACSecret != "secret" || cfg.Auth.AdminScope != DefaultAdminScope {
		t.Fatalf("unexpected auth: %+v", cfg.Auth)
	}
	if cfg.Signatures.NonceTTL != 10*time.Minute || cfg.Signatures.TimestampSkew != 2*time.Minute {
		t.Fatalf("unexpected signature defaults: %+v", cfg.Signatures)
	}
	if len(cfg.RateLimits) != 1 {
		t.Fatalf("expected blank rate limit ids to be dropped, got %d", len(cfg.RateLimits))
	}
	limit, ok := cfg.Limit("cdp")
	if !ok || limit.Burst != 10 {
		t.Fatalf("unexpected cdp limit: %+v %v", limit, ok)
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `
env: dev
storage:
  backend: memory
auth:
  enabled: false
signatures:
  timestampSkew: 30s
  nonceTTL: 5m
audit:
  dsn: "sqlite:audit.db"
logging:
  file: /var/log/rwalend.log
  maxSizeMB: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Signatures.TimestampSkew != 30*time.Second || cfg.Signatures.NonceTTL != 5*time.Minute {
		t.Fatalf("unexpected durations: %+v", cfg.Signatures)
	}
	if cfg.Audit.DSN != "sqlite:audit.db" || cfg.Logging.MaxSizeMB != 50 {
		t.Fatalf("unexpected audit/logging: %+v %+v", cfg.Audit, cfg.Logging)
	}
}

func TestLoadConfigRequiresSecretWhenAuthEnabled(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: true
`)
	if _, err := Load(path); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"unknown backend":      "auth:\n  enabled: false\nstorage:\n  backend: redis\n",
		"memory outside dev":   "auth:\n  enabled: false\nstorage:\n  backend: memory\n",
		"duplicate rate limit": "auth:\n  enabled: false\nrateLimits:\n  - id: cdp\n    requestsPerMinute: 1\n  - id: cdp\n    requestsPerMinute: 2\n",
		"zero rate":            "auth:\n  enabled: false\nrateLimits:\n  - id: cdp\n",
		"bad audit dsn":        "auth:\n  enabled: false\naudit:\n  dsn: mysql://x\n",
		"unknown field":        "auth:\n  enabled: false\ntls:\n  cert: x\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
