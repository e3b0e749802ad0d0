// Command hublink ingests live truck telemetry, detects job lifecycle
// transitions and persists prepared delivery records for the fleet
// dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/fleethub/hublink/internal/api"
	"github.com/fleethub/hublink/internal/config"
	"github.com/fleethub/hublink/internal/connection"
	"github.com/fleethub/hublink/internal/dispatcher"
	"github.com/fleethub/hublink/internal/history"
	"github.com/fleethub/hublink/internal/influx"
	"github.com/fleethub/hublink/internal/job"
	"github.com/fleethub/hublink/internal/logging"
	"github.com/fleethub/hublink/internal/monitor"
	intOtel "github.com/fleethub/hublink/internal/otel"
	"github.com/fleethub/hublink/internal/parser"
	"github.com/fleethub/hublink/internal/storage"
	"github.com/fleethub/hublink/internal/worker"
	"github.com/fleethub/hublink/pkg/core"
)

const AppName = "hublink"

const deliveryQueueLimit = 10000

var (
	SessionStartTime = time.Now()

	SlogManager = logging.NewSlogManager()
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider

	connManager    *connection.Manager
	workerManager  *worker.Manager
	monitorService *monitor.Service
)

func main() {
	configDir := flag.String("config", ".", "directory containing hublink.cfg.json")
	listenAddr := flag.String("listen", "127.0.0.1:8642", "control endpoint address (empty disables)")
	flag.Parse()

	Logger = SlogManager.Logger()

	if err := config.Load(*configDir); err != nil {
		Logger.Warn("No config file found, using defaults", "dir", *configDir)
	}

	if flag.Arg(0) == "export" {
		if err := runExport(flag.Arg(1)); err != nil {
			fmt.Fprintln(os.Stderr, "export failed:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*listenAddr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(listenAddr string) error {
	logFile, err := openLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	// OTel before logging so the otelslog bridge has a provider.
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize OTel provider: %w", err)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logFile, viper.GetString("logLevel"), otelLogProvider, connectionContext)
	Logger = SlogManager.Logger()
	Logger.Info("Session started", "app", AppName, "start", SessionStartTime.UTC().Format(time.RFC3339))

	zlog := zerolog.New(logFile).With().Timestamp().Logger()

	bus, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	telemetryCfg := config.GetTelemetryConfig()
	connManager = connection.NewManager(connection.Config{
		WebsocketURL:   telemetryCfg.WebsocketURL,
		APIEndpoint:    telemetryCfg.APIURL,
		PollInterval:   telemetryCfg.PollInterval,
		Mode:           connection.Mode(telemetryCfg.Mode),
		AutoReconnect:  telemetryCfg.AutoReconnect,
		ReconnectDelay: telemetryCfg.ReconnectDelay,
	}, parser.New(Logger), bus, Logger)

	tracker := job.NewTracker(bus, Logger)

	hist := history.NewBuffer(0)
	hist.Subscribe(bus)

	store, err := storage.NewStore(zlog)
	if err != nil {
		return fmt.Errorf("failed to create delivery store: %w", err)
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize delivery store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			Logger.Error("Error closing delivery store", "error", err)
		}
	}()

	apiClient := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := apiClient.Healthcheck(); err != nil {
		Logger.Info("Dashboard backend is offline", "error", err)
	} else {
		Logger.Info("Dashboard backend is online")
	}

	workerManager = worker.NewManager(worker.Dependencies{
		Store:     store,
		Submitter: apiClient,
		Logger:    Logger,
	}, deliveryQueueLimit, 5*time.Second)
	workerManager.RegisterHandlers(bus)
	workerManager.Start()
	defer workerManager.Stop()

	var influxManager *influx.Manager
	if viper.GetBool("influx.enabled") {
		influxManager = setupInflux(zlog, bus)
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		Connection:    connManager,
		WorkerManager: workerManager,
		LogManager:    SlogManager,
		Influx:        influxManager,
		StatusDir:     viper.GetString("logsDir"),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}
	defer monitorService.Stop()

	if listenAddr != "" {
		startControlServer(listenAddr, tracker, hist)
	}

	connManager.Connect()
	defer connManager.Disconnect()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	Logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Error("Error flushing logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Error("Error shutting down OTel provider", "error", err)
		}
	}
	return nil
}

// connectionContext stamps every log record with the live connection state.
func connectionContext() []slog.Attr {
	if connManager == nil {
		return nil
	}
	status := connManager.Status()
	attrs := []slog.Attr{slog.String("connectionState", string(status.State))}
	if workerManager != nil {
		attrs = append(attrs, slog.Int("pendingDeliveries", workerManager.QueueLen()))
	}
	return attrs
}

func openLogFile() (*os.File, error) {
	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	path := logging.LogFilePath(logsDir, AppName, SessionStartTime)

	// keep the previous session log around as .old
	if _, err := os.Stat(path); err == nil {
		os.Rename(path, path+".old")
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}
	return file, nil
}

func setupInflux(zlog zerolog.Logger, bus *dispatcher.Dispatcher) *influx.Manager {
	backupPath := logging.LogFilePath(viper.GetString("logsDir"), AppName+"_influx_backup", SessionStartTime) + ".gz"
	m := influx.NewManager(zlog, backupPath)
	if err := m.Connect(); err != nil {
		Logger.Error("Failed to connect to InfluxDB", "error", err)
		return nil
	}

	// High-volume snapshot points are buffered so slow writes never stall
	// the snapshot pipeline.
	bus.Subscribe(dispatcher.TopicSnapshot, func(e dispatcher.Event) error {
		snap, ok := e.Payload.(core.TelemetrySnapshot)
		if !ok {
			return nil
		}
		return m.WritePoint(context.Background(), influx.BucketTelemetry, influx.SnapshotPoint(&snap))
	}, dispatcher.Buffered(5000), dispatcher.Logged())

	bus.Subscribe(dispatcher.TopicDeliveryPrepared, func(e dispatcher.Event) error {
		record, ok := e.Payload.(core.DeliveryRecord)
		if !ok {
			return nil
		}
		return m.WritePoint(context.Background(), influx.BucketDeliveries, influx.DeliveryPoint(record))
	}, dispatcher.Logged())

	return m
}
