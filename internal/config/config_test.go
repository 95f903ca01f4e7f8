package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad_OverridesDefaults verifies YAML values land over the defaults
// while untouched sections keep them.
func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  rate_limit_enabled: true
response:
  auto_block: true
  require_ioc_for_block: true
tail:
  path: /var/log/nginx/access.log
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Server.RateLimitEnabled {
		t.Error("rate limit should be enabled")
	}
	if !cfg.Response.AutoBlock {
		t.Error("auto_block should be set")
	}
	if cfg.Tail.Path != "/var/log/nginx/access.log" {
		t.Errorf("tail path = %q", cfg.Tail.Path)
	}

	// Untouched sections keep their defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read timeout = %v, want default 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.Intel.Throttle != time.Hour {
		t.Errorf("intel throttle = %v, want default 1h", cfg.Intel.Throttle)
	}
}

// TestLoad_ResolvesSecretsFromEnv verifies secret fields are filled from the
// environment variables the config names.
func TestLoad_ResolvesSecretsFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
email:
  enabled: true
  host: smtp.example.com
  from: soc@example.com
  to: [oncall@example.com]
  password_env: TEST_SMTP_PASSWORD
redis:
  password_env: TEST_REDIS_PASSWORD
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_SMTP_PASSWORD", "smtp-secret")
	t.Setenv("TEST_REDIS_PASSWORD", "redis-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Email.Password != "smtp-secret" {
		t.Errorf("email password = %q", cfg.Email.Password)
	}
	if cfg.Redis.Password != "redis-secret" {
		t.Errorf("redis password = %q", cfg.Redis.Password)
	}
}

// TestLoad_MissingFile verifies a missing config file is an error.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

// TestLoad_MalformedYAML verifies parse failures are surfaced.
func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail for malformed YAML")
	}
}
