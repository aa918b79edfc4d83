// MQTT Vault - bounded retention store and telemetry bridge for MQTT.
//
// The service maintains a monitored connection to an MQTT broker, persists
// a bounded history of values for registered topics into SQLite, serves
// that history over a small REST API, and republishes operational
// telemetry (status, progress, logs, analytics) back to the broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/mqttvault/core/migrations"

	"github.com/mqttvault/core/internal/api"
	"github.com/mqttvault/core/internal/command"
	"github.com/mqttvault/core/internal/infrastructure/config"
	"github.com/mqttvault/core/internal/infrastructure/database"
	"github.com/mqttvault/core/internal/infrastructure/influxdb"
	"github.com/mqttvault/core/internal/infrastructure/logging"
	"github.com/mqttvault/core/internal/infrastructure/mqtt"
	"github.com/mqttvault/core/internal/progress"
	"github.com/mqttvault/core/internal/retention"
	"github.com/mqttvault/core/internal/telemetry"
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

// shutdownPublishTimeout bounds the final status publish on the way out.
const shutdownPublishTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting MQTT Vault",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Retention store, seeded from configuration
	store := retention.NewStore(db.DB)
	store.SetLogger(log)
	if seedErr := seedRetention(ctx, store, cfg); seedErr != nil {
		return fmt.Errorf("seeding retention metadata: %w", seedErr)
	}
	log.Info("retention store initialised", "topics", len(cfg.Retention.Topics))

	// InfluxDB mirror (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		store.SetMirror(influxClient)
		log.Info("InfluxDB mirror connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	// MQTT wiring: one monitor connection feeds the dispatcher; its manager
	// doubles as the publish gateway for telemetry.
	topics := mqtt.NewTopics(cfg.MQTT.RootTopic)
	registry := progress.NewRegistry()

	manager := mqtt.NewManager(cfg.MQTT, mqtt.RoleMonitor, nil, log)
	publisher := telemetry.NewPublisher(manager, topics, byte(cfg.MQTT.QoS), log)
	commands := command.NewHandler(registry, publisher, log)
	dispatcher := mqtt.NewDispatcher(topics.Commands(), commands, store, log)
	manager.SetDispatcher(dispatcher)

	var wg sync.WaitGroup

	// The manager runs on its own context so the shutdown status below can
	// still ride the live connection; it is cancelled only after that
	// final publish.
	mgrCtx, cancelMgr := context.WithCancel(context.Background())
	defer cancelMgr()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Every accepted progress update is republished as telemetry.
	registry.SetOnUpdate(func(_ string, uploaded, total int64, percentage float64) {
		publisher.PublishProgress(runCtx, uploaded, total, percentage)
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if runErr := manager.Run(mgrCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("MQTT connection loop terminated", "error", runErr)
		}
		// A fatal connection error takes the whole service down.
		cancelRun()
	}()

	// Periodic status heartbeat
	statusInterval := time.Duration(cfg.MQTT.StatusInterval) * time.Second
	if statusInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.RunStatusLoop(runCtx, statusInterval)
		}()
	}

	// REST query surface
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Store:   store,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(runCtx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	publisher.PublishStatus(runCtx, "started", "service initialised")
	log.Info("initialisation complete, waiting for shutdown signal")

	<-runCtx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Best-effort shutdown notice while the connection is still live; the
	// manager disconnects only once this publish has run.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownPublishTimeout)
	publisher.PublishStatus(shutdownCtx, "stopped", "service shutting down")
	cancelShutdown()

	cancelMgr()
	cancelRun()
	wg.Wait()
	dispatcher.Wait()

	log.Info("MQTT Vault stopped")
	return nil
}

// seedRetention upserts the configured broker, topics, and subscriptions so
// the wildcard monitor starts retaining values immediately.
func seedRetention(ctx context.Context, store *retention.Store, cfg *config.Config) error {
	brokerID, err := store.UpsertBroker(ctx, retention.Broker{
		Name:                 cfg.MQTT.Broker.Name,
		Host:                 cfg.MQTT.Broker.Host,
		Port:                 cfg.MQTT.Broker.Port,
		Username:             cfg.MQTT.Auth.Username,
		Password:             cfg.MQTT.Auth.Password,
		TLSEnabled:           cfg.MQTT.Broker.TLS,
		CertFile:             cfg.MQTT.Broker.CertFile,
		MaxReconnectAttempts: cfg.MQTT.Reconnect.MaxRetries,
		ReconnectIntervalMS:  cfg.MQTT.Reconnect.RetryIntervalMS,
	})
	if err != nil {
		return fmt.Errorf("upserting broker: %w", err)
	}

	for _, t := range cfg.Retention.Topics {
		topic := retention.Topic{
			Topic:            t.Topic,
			ParentTopic:      t.ParentTopic,
			MaxValues:        t.MaxValues,
			QueryFrequencyMS: t.QueryFrequencyMS,
		}
		if err := store.UpsertTopic(ctx, topic); err != nil {
			return fmt.Errorf("upserting topic %q: %w", t.Topic, err)
		}
		if err := store.UpsertSubscription(ctx, brokerID, t.Topic); err != nil {
			return fmt.Errorf("registering subscription %q: %w", t.Topic, err)
		}
	}

	return nil
}

// getConfigPath returns the configuration file path.
// Uses MQTTVAULT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MQTTVAULT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
