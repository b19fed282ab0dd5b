package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/camcore/internal/api"
	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/enumerator"
	"github.com/nerrad567/camcore/internal/hotplug"
	"github.com/nerrad567/camcore/internal/infrastructure/config"
	"github.com/nerrad567/camcore/internal/infrastructure/database"
	"github.com/nerrad567/camcore/internal/infrastructure/influxdb"
	"github.com/nerrad567/camcore/internal/infrastructure/logging"
	"github.com/nerrad567/camcore/internal/infrastructure/mqtt"
	"github.com/nerrad567/camcore/internal/inventory"
	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/migrations"

	// Registers the "generic" pipeline handler.
	_ "github.com/nerrad567/camcore/internal/pipeline/generic"
)

// loadConfig loads configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	log := logging.Default()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if path == "" {
		log.Info("no configuration file, using defaults")
	} else {
		log.Info("configuration loaded", "path", path)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// newManager creates the camera manager with the device-node enumerator.
func newManager(cfg *config.Config, log *logging.Logger, watch bool) *camera.Manager {
	return camera.New(camera.Options{
		Enumerator: enumerator.Factory(enumerator.Config{
			Dir:             cfg.Enumerator.Dir,
			Patterns:        cfg.Enumerator.Patterns,
			Watch:           watch,
			CharDevicesOnly: cfg.Enumerator.CharDevicesOnly,
		}, log.With("component", "enumerator")),
		PipelineOrder: cfg.Manager.Pipelines,
		ThreadName:    cfg.Manager.ThreadName,
		Version:       version,
		Logger:        log.With("component", "camera-manager"),
	})
}

// run is the daemon, separated from main for testability. It returns nil
// on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("starting camcore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	health := map[string]api.HealthChecker{}

	manager := newManager(cfg, log, cfg.Enumerator.Watch)
	defer closeManager(manager, cfg.GetStopTimeout(), log)

	relay := hotplug.NewRelay(manager, hotplug.Options{
		StatsInterval: cfg.GetSampleInterval(),
		Watch:         []*object.Thread{manager.Thread()},
		Logger:        log.With("component", "hotplug"),
	})
	defer relay.Stop()

	var events inventory.Repository
	if cfg.Database.Enabled {
		db, err := database.Open(database.ConfigFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path())

		repo := inventory.NewSQLiteRepository(db.DB)
		events = repo
		health["database"] = db
		if err := relay.AddSink(inventory.Sink{Repo: repo}); err != nil {
			return err
		}
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT, version)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		health["mqtt"] = mqttClient
		if err := relay.AddSink(mqtt.EventSink{Client: mqttClient, QoS: byte(cfg.MQTT.QoS)}); err != nil {
			return err
		}
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		health["influxdb"] = influxClient
		if err := relay.AddSink(influxClient); err != nil {
			return err
		}
		if err := relay.AddStatsSink(influxClient); err != nil {
			return err
		}
	}

	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Cameras: manager,
			Events:  events,
			Health:  health,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := relay.AddSink(server.Hub()); err != nil {
			return err
		}
	}

	// Sinks close after the relay has drained, and the relay stops after
	// the manager. Manager.Close is idempotent, so the earlier deferred
	// close only matters on the error paths above.
	defer func() {
		closeManager(manager, cfg.GetStopTimeout(), log)
		relay.Stop()
		log.Info("hot-plug relay stopped", "relayed", relay.Relayed(), "failed", relay.Failed())
	}()

	// The relay is started before the manager so that cameras found by the
	// initial enumeration are relayed too.
	if err := relay.Start(); err != nil {
		return fmt.Errorf("starting hot-plug relay: %w", err)
	}

	if err := manager.Start(); err != nil {
		return fmt.Errorf("starting camera manager: %w", err)
	}

	if server != nil {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"cameras", len(manager.Cameras()),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// closeManager closes the manager, giving up after timeout so a wedged
// pipeline handler cannot hang shutdown.
func closeManager(m *camera.Manager, timeout time.Duration, log *logging.Logger) {
	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Error("camera manager did not stop in time", "timeout", timeout)
	}
}
