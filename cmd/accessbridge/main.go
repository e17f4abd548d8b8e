// Access Bridge - access-control device adapter service.
//
// This is the main entry point. It connects stored access-control devices
// through the configured adapter and exposes them over the ops API, MQTT and
// InfluxDB.
//
// Usage:
//
//	accessbridge                 run the service
//	accessbridge token [flags]   mint an ops API token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/adapter/factory"
	"github.com/nerrad567/gray-logic-access/internal/adapter/hikvision"
	"github.com/nerrad567/gray-logic-access/internal/api"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/maintenance"
	"github.com/nerrad567/gray-logic-access/internal/telemetry"
	"github.com/nerrad567/gray-logic-access/internal/vault"
	"github.com/nerrad567/gray-logic-access/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Deferred teardown runs in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting access bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("creating database directory: %w", mkErr)
		}
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Vault, devices and audit
	v, err := vault.NewFromConfig(cfg.Security.Vault)
	if err != nil {
		return fmt.Errorf("initialising credential vault: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	resolver := device.NewResolver(registry, v)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Optional sinks
	mqttClient := connectMQTT(cfg.MQTT, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInflux(ctx, cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	pubOpts := telemetry.Options{Audit: auditRepo, Logger: log}
	if mqttClient != nil {
		pubOpts.MQTT = mqttClient
	}
	if influxClient != nil {
		pubOpts.Influx = influxClient
	}
	publisher := telemetry.New(pubOpts)

	// Adapter
	adapters := factory.New(cfg.Adapter, log)
	adapters.Register(adapter.TypeHikvision, func(c config.AdapterConfig, l adapter.Logger) (adapter.Adapter, error) {
		return hikvision.New(resolver, c, hikvision.Options{Logger: l}), nil
	})
	active := adapters.CreateAdapter(ctx, adapter.Type(cfg.Adapter.Type))
	defer func() {
		log.Info("closing adapters")
		if closeErr := adapters.Close(); closeErr != nil {
			log.Error("error closing adapters", "error", closeErr)
		}
	}()
	log.Info("adapter ready", "configured", cfg.Adapter.Type, "active", string(active.Type()))

	reporter := factory.NewReporter(factory.ReporterConfig{
		Checker:   adapters,
		Publisher: publisher,
		Interval:  cfg.Adapter.HealthCheckInterval,
		Logger:    log,
	})
	reporter.Start(ctx)
	defer reporter.Stop()

	if cfg.Adapter.Events.AutoSubscribe {
		subscribeAll(ctx, active, registry, publisher, log)
	}

	// Maintenance
	svc := maintenance.NewService(active, maintenance.Options{
		Devices:     registry,
		Recorder:    publisher,
		Concurrency: cfg.Maintenance.Concurrency,
		Logger:      log,
	})
	store := maintenance.NewFileBackupStore(cfg.Maintenance.BackupDir, cfg.Maintenance.BackupKeep)
	if regErr := svc.Register(maintenance.BuiltinTasks(store)...); regErr != nil {
		return fmt.Errorf("registering maintenance tasks: %w", regErr)
	}

	scheduler := maintenance.NewScheduler(svc, log)
	if loadErr := scheduler.Load(cfg.Maintenance.Schedules); loadErr != nil {
		return fmt.Errorf("loading maintenance schedules: %w", loadErr)
	}
	scheduler.Start()
	defer func() {
		log.Info("stopping maintenance scheduler")
		scheduler.Stop()
	}()
	log.Info("maintenance scheduler started", "jobs", scheduler.Scheduled())

	// API
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Security:    cfg.Security,
			Logger:      log,
			Adapter:     active,
			Factory:     adapters,
			Registry:    registry,
			Vault:       v,
			Maintenance: svc,
			Audit:       auditRepo,
			Telemetry:   publisher,
			DB:          db.DB,
			Version:     version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, active, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ACCESSBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACCESSBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT returns nil when MQTT is disabled or the broker is unreachable.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil
	}
	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// connectInflux returns nil when InfluxDB is disabled or unhealthy.
func connectInflux(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}
	client, err := influxdb.Connect(cfg)
	if err == nil {
		err = client.HealthCheck(ctx)
		if err != nil {
			client.Close() //nolint:errcheck // discarding an unhealthy client
		}
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}

// subscribeAll starts event delivery for every stored device. Failures are
// logged and the device is skipped.
func subscribeAll(ctx context.Context, a adapter.Adapter, registry *device.Registry, pub *telemetry.Publisher, log *logging.Logger) {
	devices, err := registry.ListDevices(ctx)
	if err != nil {
		log.Warn("auto-subscribe: listing devices failed", "error", err)
		return
	}
	subscribed := 0
	for _, d := range devices {
		if subErr := a.SubscribeToEvents(ctx, d.ID, pub.EventHandler()); subErr != nil {
			log.Warn("auto-subscribe failed", "device_id", d.ID, "error", subErr)
			continue
		}
		subscribed++
	}
	log.Info("event subscriptions started", "devices", subscribed, "stored", len(devices))
}

// healthCheck verifies the database. An unhealthy adapter only logs a
// warning: devices may come up after the bridge, and the health reporter
// keeps probing.
func healthCheck(ctx context.Context, db *database.DB, a adapter.Adapter, log *logging.Logger) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.HealthCheck(ctx); err != nil {
		log.Warn("adapter unhealthy at startup, continuing", "adapter", string(a.Type()), "error", err)
	}
	return nil
}

// runToken mints an ops API token signed with the configured JWT secret.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("sub", "", "token subject (operator or tool name)")
	role := fs.String("role", string(auth.RoleViewer), "role: viewer or admin")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	secret := fs.String("secret", "", "JWT secret (default: from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-sub is required")
	}

	key := *secret
	if key == "" {
		key = os.Getenv("ACCESSBRIDGE_JWT_SECRET")
	}
	if key == "" {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		key = cfg.Security.JWT.Secret
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), key, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
