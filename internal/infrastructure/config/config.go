package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Adapter type names accepted by adapter.type.
const (
	AdapterTypeHikvision = "hikvision"
	AdapterTypeStub      = "stub"
	AdapterTypeAuto      = "auto"
)

// Event delivery modes accepted by adapter.events.mode.
const (
	EventModePush = "push"
	EventModePoll = "poll"
)

// Config is the root configuration structure for the access bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Adapter     AdapterConfig     `yaml:"adapter"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live event stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT   JWTConfig   `yaml:"jwt"`
	Vault VaultConfig `yaml:"vault"`
}

// JWTConfig contains the shared secret used to validate ops API tokens.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// VaultConfig contains the key material for the credential vault.
//
// Either Key (64 hex characters, a raw AES-256 key) or Passphrase must be set.
// A passphrase is stretched with argon2id using Salt.
type VaultConfig struct {
	Key        string `yaml:"key"`
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

// AdapterConfig selects and tunes the device adapter.
type AdapterConfig struct {
	// Type is one of "hikvision", "stub" or "auto".
	Type string `yaml:"type"`

	// HTTPTimeout bounds ordinary device calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// ConnectionTestTimeout bounds TestConnection. Never more than 5s.
	ConnectionTestTimeout time.Duration `yaml:"connection_test_timeout"`

	// RebootTimeout bounds the reboot call.
	RebootTimeout time.Duration `yaml:"reboot_timeout"`

	// TransferTimeout bounds firmware and configuration transfers.
	TransferTimeout time.Duration `yaml:"transfer_timeout"`

	// HealthCheckTimeout bounds each adapter health probe run by the factory.
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"`

	// HealthCheckInterval is how often the health reporter re-probes adapters.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// MaxRetries caps consecutive event stream reconnect attempts before
	// falling back to polling.
	MaxRetries int `yaml:"max_retries"`

	// InsecureSkipVerify disables TLS verification for HTTPS devices, which
	// usually ship self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	Session   SessionConfig   `yaml:"session"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Events    EventsConfig    `yaml:"events"`
	Firmware  FirmwareConfig  `yaml:"firmware"`
}

// SessionConfig tunes the secure session cache.
type SessionConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// DiscoveryConfig tunes network discovery.
type DiscoveryConfig struct {
	Networks     []string      `yaml:"networks"`
	Ports        []int         `yaml:"ports"`
	Concurrency  int           `yaml:"concurrency"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	MaxHosts     int           `yaml:"max_hosts"`
}

// EventsConfig tunes device event subscriptions.
type EventsConfig struct {
	Mode           string        `yaml:"mode"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	BufferSize     int           `yaml:"buffer_size"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	AutoSubscribe  bool          `yaml:"auto_subscribe"`
}

// FirmwareConfig tunes firmware update status polling.
type FirmwareConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Deadline     time.Duration `yaml:"deadline"`
}

// MaintenanceConfig configures the maintenance service and scheduler.
type MaintenanceConfig struct {
	BackupDir   string           `yaml:"backup_dir"`
	BackupKeep  int              `yaml:"backup_keep"`
	Concurrency int              `yaml:"concurrency"`
	Schedules   []ScheduleConfig `yaml:"schedules"`
}

// ScheduleConfig binds a maintenance task to a cron expression.
// An empty Devices list means every stored device.
type ScheduleConfig struct {
	Task    string   `yaml:"task"`
	Spec    string   `yaml:"spec"`
	Devices []string `yaml:"devices"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ACCESSBRIDGE_SECTION_KEY
// For example: ACCESSBRIDGE_DATABASE_PATH, ACCESSBRIDGE_ADAPTER_TYPE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading a file.
// Useful for tests and tooling that only need sane adapter timings.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Access Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/accessbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "accessbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/events/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Adapter: AdapterConfig{
			Type:                  AdapterTypeHikvision,
			HTTPTimeout:           10 * time.Second,
			ConnectionTestTimeout: 5 * time.Second,
			RebootTimeout:         30 * time.Second,
			TransferTimeout:       60 * time.Second,
			HealthCheckTimeout:    5 * time.Second,
			HealthCheckInterval:   60 * time.Second,
			MaxRetries:            3,
			Session: SessionConfig{
				TTL:        600 * time.Second,
				MaxEntries: 256,
			},
			Discovery: DiscoveryConfig{
				Ports:        []int{80, 8000, 8080},
				Concurrency:  20,
				ProbeTimeout: 10 * time.Second,
				MaxHosts:     1024,
			},
			Events: EventsConfig{
				Mode:           EventModePush,
				PollInterval:   5 * time.Second,
				BufferSize:     64,
				ReconnectDelay: 5 * time.Second,
			},
			Firmware: FirmwareConfig{
				PollInterval: 5 * time.Second,
				Deadline:     10 * time.Minute,
			},
		},
		Maintenance: MaintenanceConfig{
			BackupDir:   "./data/backups",
			BackupKeep:  5,
			Concurrency: 4,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ACCESSBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("ACCESSBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ACCESSBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ACCESSBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ACCESSBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ACCESSBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("ACCESSBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("ACCESSBRIDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("ACCESSBRIDGE_VAULT_KEY"); v != "" {
		cfg.Security.Vault.Key = v
	}
	if v := os.Getenv("ACCESSBRIDGE_VAULT_PASSPHRASE"); v != "" {
		cfg.Security.Vault.Passphrase = v
	}

	// Adapter
	if v := os.Getenv("ACCESSBRIDGE_ADAPTER_TYPE"); v != "" {
		cfg.Adapter.Type = strings.ToLower(v)
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Tokens grant door control, so a weak secret is refused outright.
	const minJWTSecretLength = 32
	if c.API.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set ACCESSBRIDGE_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if c.Security.Vault.Key == "" && c.Security.Vault.Passphrase == "" {
		errs = append(errs, "security.vault.key or security.vault.passphrase is required")
	}
	if c.Security.Vault.Passphrase != "" && c.Security.Vault.Salt == "" {
		errs = append(errs, "security.vault.salt is required with a passphrase")
	}

	errs = append(errs, c.Adapter.validate()...)

	if c.Maintenance.Concurrency < 1 {
		errs = append(errs, "maintenance.concurrency must be at least 1")
	}
	for i, s := range c.Maintenance.Schedules {
		if s.Task == "" || s.Spec == "" {
			errs = append(errs, fmt.Sprintf("maintenance.schedules[%d] needs task and spec", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// maxConnectionTestTimeout is the ceiling for adapter.connection_test_timeout.
const maxConnectionTestTimeout = 5 * time.Second

func (a AdapterConfig) validate() []string {
	var errs []string

	switch a.Type {
	case AdapterTypeHikvision, AdapterTypeStub, AdapterTypeAuto:
	default:
		errs = append(errs, fmt.Sprintf("adapter.type %q must be hikvision, stub or auto", a.Type))
	}

	if a.HTTPTimeout <= 0 {
		errs = append(errs, "adapter.http_timeout must be positive")
	}
	if a.ConnectionTestTimeout <= 0 || a.ConnectionTestTimeout > maxConnectionTestTimeout {
		errs = append(errs, "adapter.connection_test_timeout must be between 0 and 5s")
	}
	if a.RebootTimeout <= 0 || a.TransferTimeout <= 0 || a.HealthCheckTimeout <= 0 {
		errs = append(errs, "adapter reboot, transfer and health check timeouts must be positive")
	}
	if a.MaxRetries < 0 {
		errs = append(errs, "adapter.max_retries must not be negative")
	}
	if a.Session.TTL <= 0 {
		errs = append(errs, "adapter.session.ttl must be positive")
	}
	if a.Discovery.Concurrency < 1 {
		errs = append(errs, "adapter.discovery.concurrency must be at least 1")
	}
	for _, p := range a.Discovery.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("adapter.discovery.ports: %d is not a valid port", p))
		}
	}
	if a.Events.Mode != EventModePush && a.Events.Mode != EventModePoll {
		errs = append(errs, "adapter.events.mode must be push or poll")
	}
	if a.Events.PollInterval <= 0 {
		errs = append(errs, "adapter.events.poll_interval must be positive")
	}
	if a.Events.BufferSize < 1 {
		errs = append(errs, "adapter.events.buffer_size must be at least 1")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
