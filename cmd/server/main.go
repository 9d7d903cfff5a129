// Command server runs the authoritative replication server: the tick loop,
// the WebSocket transport and a small HTTP admin surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/influx"
	"github.com/OCAP2/replication/internal/logging"
	"github.com/OCAP2/replication/internal/monitor"
	intOtel "github.com/OCAP2/replication/internal/otel"
	"github.com/OCAP2/replication/internal/server"
	"github.com/OCAP2/replication/internal/storage"
	wstransport "github.com/OCAP2/replication/internal/transport/websocket"
	"github.com/OCAP2/replication/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

// ServiceName names log files, journal dumps and the OTel resource.
const ServiceName = "replserver"

const shutdownTimeout = 5 * time.Second

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// engine is read by the log context provider from any goroutine
	engine atomic.Pointer[server.Engine]
)

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}
	if err := run(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
		config.LoadDefaults()
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	serverCfg, err := config.GetServerConfig()
	if err != nil {
		return err
	}

	logCfg := config.GetLoggingConfig()
	logFile := logging.NewRotatingFile(logCfg, ServiceName, SessionStartTime)
	if logFile != nil {
		defer logFile.Close()
	}
	setupOTel(logCfg)
	setupLogging(logCfg, logFile)
	defer shutdownOTel()

	Logger.Info("Starting replication server", "version", Version, "buildDate", BuildDate)

	backend := initStorage()
	if backend != nil {
		defer func() {
			if err := backend.Close(); err != nil {
				Logger.Error("Failed to close storage backend", "error", err)
			}
		}()
	}

	influxManager := connectInflux(logCfg, logFile)
	if influxManager != nil {
		defer influxManager.Close()
	}

	tr := wstransport.NewServer(Logger)
	opts := []server.Option{server.WithLogger(Logger)}
	var session *core.Session
	if backend != nil {
		session = &core.Session{
			ID:        uuid.New().String(),
			Name:      serverCfg.SessionName,
			StartedAt: SessionStartTime,
			Settings: map[string]any{
				"tickRate":     serverCfg.TickRate.String(),
				"syncInterval": serverCfg.SyncInterval.String(),
				"bots":         serverCfg.Bots,
				"items":        len(serverCfg.Items),
			},
		}
		if err := backend.StartSession(session); err != nil {
			Logger.Error("Failed to start journal session", "error", err)
			session = nil
		} else {
			Logger.Info("Journal session started", "session", session.ID)
			opts = append(opts, server.WithStorage(backend))
		}
	}

	e, err := server.New(engineConfig(serverCfg), tr, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	engine.Store(e)
	for i := 0; i < serverCfg.Bots; i++ {
		e.SpawnBot()
	}

	mon := monitor.NewService(monitorDeps(e, serverCfg, backend, influxManager))
	if err := mon.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}
	defer mon.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              serverCfg.Listen,
		Handler:           newMux(e, tr, Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", serverCfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- e.Run(ctx, serverCfg.TickRate)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		Logger.Info("Shutting down")
	case err, ok := <-httpErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case err := <-engineErr:
		runErr = err
		engineErr <- nil
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := tr.Close(); err != nil {
		Logger.Warn("Transport close failed", "error", err)
	}
	if err := <-engineErr; err != nil && runErr == nil {
		runErr = err
	}

	if session != nil {
		if err := backend.EndSession(); err != nil {
			Logger.Error("Failed to end journal session", "error", err)
		} else {
			uploadExport(backend, session)
		}
	}
	if runErr != nil {
		Logger.Error("Server stopped", "error", runErr)
	}
	return runErr
}

func engineConfig(sc config.ServerConfig) server.Config {
	cfg := server.DefaultConfig()
	cfg.SyncInterval = sc.SyncInterval
	for _, it := range sc.Items {
		cfg.Items = append(cfg.Items, server.ItemSpec{
			Name:     it.Name,
			Model:    it.Model,
			Position: core.Vec3{X: it.Position[0], Y: it.Position[1], Z: it.Position[2]},
		})
	}
	return cfg
}

func setupOTel(logCfg config.LoggingConfig) {
	otelCfg := config.GetOTelConfig()
	cfg := intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: otelCfg.MetricInterval,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		if w := logging.NewRotatingFile(logCfg, ServiceName+".otel", SessionStartTime); w != nil {
			cfg.LogWriter = w
			cfg.MetricWriter = w
		}
	}

	p, err := intOtel.New(cfg)
	if err != nil {
		Logger.Warn("Failed to initialize OpenTelemetry, continuing without it", "error", err)
		p, _ = intOtel.New(intOtel.Config{})
	}
	OTelProvider = p
	OTelProvider.Install()
}

func setupLogging(logCfg config.LoggingConfig, logFile io.Writer) {
	graylog, err := logging.NewGraylogWriter(logCfg.GraylogAddress, ServiceName)
	if err != nil {
		Logger.Warn("Graylog output disabled", "error", err)
	}
	opts := logging.Options{
		File:     logFile,
		Level:    logCfg.Level,
		JSON:     true,
		Provider: OTelProvider.LoggerProvider(),
		Scope:    ServiceName,
		Context: func() []slog.Attr {
			e := engine.Load()
			if e == nil {
				return nil
			}
			return []slog.Attr{slog.Uint64("tick", e.Status().Tick)}
		},
	}
	if graylog != nil {
		opts.Graylog = graylog
	}
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
}

func shutdownOTel() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutting down OpenTelemetry: %v\n", err)
	}
}

func initStorage() storage.Backend {
	backend, err := createStorageBackend(config.GetStorageConfig(), Logger)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil
	}
	if backend == nil {
		return nil
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend, continuing without journal", "error", err)
		_ = backend.Close()
		return nil
	}
	return backend
}

func connectInflux(logCfg config.LoggingConfig, logFile io.Writer) *influx.Manager {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return nil
	}
	m := influx.NewManager(influxCfg, logging.NewZerolog(logFile, logCfg.Level).With().Str("component", "influx").Logger())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		Logger.Warn("InfluxDB unavailable, performance samples will not be reported", "error", err)
		_ = m.Close()
		return nil
	}
	return m
}

func monitorDeps(e *server.Engine, sc config.ServerConfig, backend storage.Backend, im *influx.Manager) monitor.Dependencies {
	deps := monitor.Dependencies{
		Source:     e,
		Logger:     Logger,
		StatusFile: sc.StatusFile,
		Period:     sc.MonitorPeriod,
	}
	if rec, ok := backend.(storage.PerformanceRecorder); ok {
		deps.Recorder = rec
	}
	if im != nil {
		deps.Influx = im
	}
	return deps
}
