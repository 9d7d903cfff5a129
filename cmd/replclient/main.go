// Command replclient is a headless client. It connects to a replication
// server, mirrors the world into a MemoryScene and wanders around.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/OCAP2/replication/internal/client"
	"github.com/OCAP2/replication/internal/config"
	"github.com/OCAP2/replication/internal/logging"
	wstransport "github.com/OCAP2/replication/internal/transport/websocket"
)

// ServiceName names the client log file.
const ServiceName = "replclient"

// reportEvery is how often convergence is logged.
const reportEvery = 5 * time.Second

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	configErr := config.Load(configDir)
	if configErr != nil {
		config.LoadDefaults()
	}
	logCfg := config.GetLoggingConfig()
	logFile := logging.NewRotatingFile(logCfg, ServiceName, time.Now())
	if logFile != nil {
		defer logFile.Close()
	}
	log := logging.NewZerolog(logFile, logCfg.Level)
	if configErr != nil {
		log.Warn().Err(configErr).Msg("Failed to load config, using defaults!")
	}

	if err := run(log, config.GetClientConfig()); err != nil {
		log.Error().Err(err).Msg("Client stopped")
		os.Exit(1)
	}
}

func run(log zerolog.Logger, cfg config.ClientConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}
	if cfg.TickRate <= 0 {
		return fmt.Errorf("client.tickRate must be positive, got %s", cfg.TickRate)
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logging.Options{Console: os.Stderr, Level: log.GetLevel().String()})

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	tr, err := wstransport.Dial(dialCtx, cfg.URL, slogManager.Logger())
	cancelDial()
	if err != nil {
		return err
	}
	defer tr.Close()

	log = log.With().Uint64("player", uint64(tr.ID())).Logger()
	log.Info().Str("url", cfg.URL).Msg("Connected")

	scene := client.NewMemoryScene()
	rec := client.New(tr, scene, client.WithLogger(log))
	input := client.NewInputSender(tr)
	drv := newDriver(rand.New(rand.NewSource(time.Now().UnixNano())), cfg.AttackRate)

	ticker := time.NewTicker(cfg.TickRate)
	defer ticker.Stop()
	start := time.Now()
	lastReport := time.Duration(0)
	placed := false

	for {
		select {
		case <-ctx.Done():
			logConvergence(log, rec, scene)
			return nil
		case <-tr.Done():
			logConvergence(log, rec, scene)
			if err := tr.Err(); err != nil {
				return fmt.Errorf("connection closed: %w", err)
			}
			return nil
		case <-ticker.C:
		}

		now := time.Since(start)
		if err := rec.Tick(); err != nil {
			log.Error().Err(err).Msg("Reconcile failed")
		}

		local, ok := rec.Controlled()
		if !ok {
			continue
		}
		if !placed {
			if n, ok := scene.Node(local); ok {
				drv.place(n.Transform.Translation)
				placed = true
			}
		}

		if err := input.Update(now, drv.step(now, cfg.TickRate)); err != nil {
			log.Warn().Err(err).Msg("Sending input failed")
		}
		if target, ok := drv.attack(now); ok {
			if err := input.Attack(target); err != nil {
				log.Warn().Err(err).Msg("Sending attack failed")
			}
		}

		if now-lastReport >= reportEvery {
			lastReport = now
			logConvergence(log, rec, scene)
		}
	}
}

func logConvergence(log zerolog.Logger, rec *client.Reconciler, scene *client.MemoryScene) {
	stats := rec.Stats()
	log.Info().
		Int("players", len(rec.Players())).
		Int("tracked", rec.Tracked()).
		Int("nodes", scene.Len()).
		Int("remote", len(scene.Nodes(client.NodeRemotePlayer))).
		Int("projectiles", len(scene.Nodes(client.NodeProjectile))).
		Int("items", len(scene.Nodes(client.NodeItem))).
		Uint64("events", stats.Events).
		Uint64("snapshots", stats.Snapshots).
		Uint64("unknown", stats.Unknown).
		Uint64("malformed", stats.Malformed).
		Msg("Scene state")
}
