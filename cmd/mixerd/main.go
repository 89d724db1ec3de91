package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/tabmix/mixer/internal/audio"
	"github.com/tabmix/mixer/internal/audio/simulated"
	"github.com/tabmix/mixer/internal/audio/wasapi"
	"github.com/tabmix/mixer/internal/config"
	"github.com/tabmix/mixer/internal/event"
	"github.com/tabmix/mixer/internal/gateway"
	"github.com/tabmix/mixer/internal/logging"
	"github.com/tabmix/mixer/internal/monitor"
	"github.com/tabmix/mixer/internal/process"
	"github.com/tabmix/mixer/internal/session"
	"github.com/tabmix/mixer/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use a simulated audio subsystem")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override UI server port")
	gatewayPort := flag.Int("gateway-port", 0, "Override extension gateway port")
	logLevel := flag.String("log-level", "", "Override log level")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *gatewayPort > 0 {
		cfg.Gateway.Port = *gatewayPort
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *mockMode, logger.Sugar()); err != nil {
		logger.Error("mixerd exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, mockMode bool, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sys audio.Subsystem
	if mockMode {
		log.Infow("starting in mock mode", "tick", cfg.Mock.Tick, "max_sessions", cfg.Mock.MaxSessions)
		sim := simulated.New()
		simulated.NewDriver(sim, cfg.Mock.Tick, cfg.Mock.MaxSessions).Start(ctx)
		sys = sim
	} else {
		sys = wasapi.New()
	}

	names := process.NewResolver()
	broadcaster := ws.NewBroadcaster(cfg.Server.MaxConnections, log.Named("ws"))
	defer broadcaster.Close()
	sink := event.Fanout{broadcaster, event.LogSink{Logger: log.Named("events")}}

	mon := monitor.New(sys, names, sink, log.Named("monitor"), cfg.Monitor.PollInterval)
	gw := gateway.New(gateway.Config{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		Ack:            cfg.Gateway.Ack,
		PingInterval:   cfg.Gateway.PingInterval,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		MaxConnections: cfg.Gateway.MaxConnections,
		ExtensionIDs:   cfg.Gateway.ExtensionIDs,
	}, sink, log.Named("gateway"))
	queries := session.NewQueryService(sys, names, log.Named("query"))
	server := ws.NewServer(cfg.Server, broadcaster, queries, gw, cancel, log.Named("server"))

	// Monitor and gateway failures are published as server-error events
	// and logged; the UI server stays up so clients can still query.
	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Errorw("component stopped", "component", name, "err", err)
			}
		}()
	}
	background("monitor", mon.Run)
	background("gateway", gw.Run)

	err := ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), log.Named("http"))
	cancel()
	log.Infow("shutting down")
	wg.Wait()
	if err != nil {
		return fmt.Errorf("ui server: %w", err)
	}
	return nil
}
