// FSMosquito client - flight simulator telemetry over MQTT
//
// This is the main entry point for the FSMosquito bridge. It connects to a
// SimConnect relay on the simulator machine and to an MQTT broker, publishes
// simulation variables on request, and applies set requests coming back
// from the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsmosquito/fsmosquito-client/internal/bridge"
	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/config"
	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/influxdb"
	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/logging"
	"github.com/fsmosquito/fsmosquito-client/internal/infrastructure/mqtt"
	"github.com/fsmosquito/fsmosquito-client/internal/schedule"
	"github.com/fsmosquito/fsmosquito-client/internal/simconnect"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// statsInterval is how often bridge statistics are logged at debug level.
const statsInterval = time.Minute

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting FSMosquito client",
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

	log = logging.New(cfg.Logging, version, cfg.Client.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	sched := schedule.NewScheduler()

	// Telemetry client. The relay's receive goroutine only signals; the
	// pump goroutine below does the dispatching.
	ready := make(chan struct{}, 1)
	dialer := &simconnect.RelayDialer{
		Notify: func() { notify(ready) },
		Logger: log.Component("relay"),
	}
	simClient := simconnect.NewClient(simconnect.Config{
		AppName:           cfg.Client.AppName,
		PulseInterval:     cfg.GetPulseInterval(),
		ReconnectInterval: cfg.GetReconnectInterval(),
		RequestIDs:        simconnect.NewSequence(cfg.SimConnect.RequestIDCeiling),
	}, dialer, sched)
	simClient.SetLogger(log.Component("simconnect"))

	// Broker client
	mqttClient := mqtt.NewClient(cfg.MQTT, cfg.Client.ID,
		mqtt.NewPahoTransport(cfg.MQTT, cfg.Client.ID), sched)
	mqttClient.SetLogger(log.Component("mqtt"))

	// Value history (optional)
	var recorder bridge.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Client.ID)
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
		recorder = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	adapter := bridge.NewAdapter(simClient, mqttClient, recorder)
	adapter.SetLogger(log.Component("bridge"))
	defer func() {
		if stopErr := adapter.Stop(); stopErr != nil {
			log.Error("error stopping bridge", "error", stopErr)
		}
	}()

	pumpCtx, stopPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pump(pumpCtx, ready, adapter.SignalReceiveMessage)
	}()
	defer func() {
		stopPump()
		<-pumpDone
	}()

	if err := adapter.Start(ctx, simconnect.Handle(cfg.SimConnect.RelayURL)); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started",
		"relay", cfg.SimConnect.RelayURL,
		"broker", cfg.MQTT.ServerURL,
		"client_id", cfg.Client.ID,
	)

	statsTask := sched.Every(statsInterval, func() {
		s := adapter.Stats()
		log.Debug("bridge stats",
			"subscriptions", s.Telemetry.Subscriptions,
			"polls", s.PollsRequested,
			"responses", s.ResponsesReceived,
			"values_published", s.ValuesPublished,
			"queued", s.Broker.Queued,
			"sent", s.Broker.Sent,
			"received", s.MessagesReceived,
			"dropped", s.RequestsDropped,
		)
	})
	defer statsTask.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. stats task
	// 2. message pump
	// 3. bridge (simulation host, then broker)
	// 4. InfluxDB (if enabled)

	log.Info("FSMosquito client stopped")
	return nil
}

// notify records that relay frames are waiting without blocking the
// receive goroutine.
func notify(ready chan<- struct{}) {
	select {
	case ready <- struct{}{}:
	default:
	}
}

// pump calls dispatch once per readiness notification until ctx is done.
func pump(ctx context.Context, ready <-chan struct{}, dispatch func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			dispatch()
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses FSMOSQUITO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FSMOSQUITO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
