package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
  vault:
    passphrase: "correct horse battery staple"
    salt: "site-test"
adapter:
  type: auto
  http_timeout: 8s
  session:
    ttl: 2m
  discovery:
    networks: ["192.168.1.0/24"]
    ports: [80, 443]
  events:
    mode: poll
    poll_interval: 3s
maintenance:
  schedules:
    - task: connectivity-check
      spec: "@every 1h"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Adapter.Type != AdapterTypeAuto {
		t.Errorf("Adapter.Type = %q, want %q", cfg.Adapter.Type, AdapterTypeAuto)
	}
	if cfg.Adapter.HTTPTimeout != 8*time.Second {
		t.Errorf("Adapter.HTTPTimeout = %v, want 8s", cfg.Adapter.HTTPTimeout)
	}
	if cfg.Adapter.Session.TTL != 2*time.Minute {
		t.Errorf("Adapter.Session.TTL = %v, want 2m", cfg.Adapter.Session.TTL)
	}
	if len(cfg.Adapter.Discovery.Ports) != 2 || cfg.Adapter.Discovery.Ports[1] != 443 {
		t.Errorf("Adapter.Discovery.Ports = %v, want [80 443]", cfg.Adapter.Discovery.Ports)
	}
	if cfg.Adapter.Events.Mode != EventModePoll {
		t.Errorf("Adapter.Events.Mode = %q, want poll", cfg.Adapter.Events.Mode)
	}
	// Untouched values keep their defaults.
	if cfg.Adapter.RebootTimeout != 30*time.Second {
		t.Errorf("Adapter.RebootTimeout = %v, want 30s default", cfg.Adapter.RebootTimeout)
	}
	if cfg.Adapter.Discovery.Concurrency != 20 {
		t.Errorf("Adapter.Discovery.Concurrency = %d, want 20 default", cfg.Adapter.Discovery.Concurrency)
	}
	if len(cfg.Maintenance.Schedules) != 1 || cfg.Maintenance.Schedules[0].Task != "connectivity-check" {
		t.Errorf("Maintenance.Schedules = %+v", cfg.Maintenance.Schedules)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	cfg.Security.Vault.Key = strings.Repeat("ab", 32)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "port ignored when api disabled", mutate: func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
			c.Security.JWT.Secret = ""
		}},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "jwt.secret"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
		{name: "missing vault key material", mutate: func(c *Config) { c.Security.Vault.Key = "" }, wantErr: "vault.key"},
		{name: "passphrase without salt", mutate: func(c *Config) {
			c.Security.Vault.Key = ""
			c.Security.Vault.Passphrase = "pass"
		}, wantErr: "vault.salt"},
		{name: "unknown adapter type", mutate: func(c *Config) { c.Adapter.Type = "dahua" }, wantErr: "adapter.type"},
		{name: "connection test timeout above 5s", mutate: func(c *Config) {
			c.Adapter.ConnectionTestTimeout = 6 * time.Second
		}, wantErr: "connection_test_timeout"},
		{name: "bad discovery port", mutate: func(c *Config) { c.Adapter.Discovery.Ports = []int{0} }, wantErr: "discovery.ports"},
		{name: "bad event mode", mutate: func(c *Config) { c.Adapter.Events.Mode = "webhook" }, wantErr: "events.mode"},
		{name: "schedule without spec", mutate: func(c *Config) {
			c.Maintenance.Schedules = []ScheduleConfig{{Task: "config-backup"}}
		}, wantErr: "schedules[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ACCESSBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ACCESSBRIDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("ACCESSBRIDGE_MQTT_USERNAME", "testuser")
	t.Setenv("ACCESSBRIDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("ACCESSBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("ACCESSBRIDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ACCESSBRIDGE_JWT_SECRET", "jwt-secret")
	t.Setenv("ACCESSBRIDGE_VAULT_PASSPHRASE", "vault-pass")
	t.Setenv("ACCESSBRIDGE_ADAPTER_TYPE", "STUB")

	applyEnvOverrides(cfg)

	checks := []struct {
		name, got, want string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Security.Vault.Passphrase", cfg.Security.Vault.Passphrase, "vault-pass"},
		{"Adapter.Type", cfg.Adapter.Type, "stub"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	a := cfg.Adapter
	if a.HTTPTimeout != 10*time.Second || a.ConnectionTestTimeout != 5*time.Second ||
		a.RebootTimeout != 30*time.Second || a.TransferTimeout != 60*time.Second {
		t.Errorf("unexpected default timeouts: %+v", a)
	}
	if a.Session.TTL != 600*time.Second {
		t.Errorf("default session TTL = %v, want 600s", a.Session.TTL)
	}
	if a.Events.PollInterval != 5*time.Second {
		t.Errorf("default poll interval = %v, want 5s", a.Events.PollInterval)
	}
	wantPorts := []int{80, 8000, 8080}
	for i, p := range wantPorts {
		if a.Discovery.Ports[i] != p {
			t.Errorf("default discovery ports = %v, want %v", a.Discovery.Ports, wantPorts)
			break
		}
	}
}
