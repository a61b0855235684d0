package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robosim/backend/internal/api"
	"github.com/robosim/backend/internal/config"
	"github.com/robosim/backend/internal/frontend"
	"github.com/robosim/backend/internal/maps"
	"github.com/robosim/backend/internal/mock"
	"github.com/robosim/backend/internal/sim"
	"github.com/robosim/backend/internal/simconfig"
	"github.com/robosim/backend/internal/stats"
	"github.com/robosim/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Use a synthetic frame producer instead of the engine")
	devMode := flag.Bool("dev", false, "Development mode (serve frontend from filesystem)")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	worlds := simconfig.NewManager(cfg.Sim.WorldConfig)
	if err := worlds.EnsureExists(); err != nil {
		log.Fatalf("Failed to write world config: %v", err)
	}

	registry := sim.NewRegistry()
	mapStore := maps.NewStore(cfg.Sim.MapsDir)
	broadcaster := ws.NewBroadcaster(registry)
	tracker := stats.NewTracker()

	var factory api.ProducerFactory
	if *mockMode {
		log.Println("Starting in mock mode (synthetic frames)")
		factory = func(params *simconfig.Params, _ *simconfig.WorldConfig) (sim.Producer, error) {
			return mock.NewProducer(params, cfg.Sim.MaxSteps), nil
		}
	} else {
		factory = api.EngineFactory(mapStore, cfg.Sim.MaxSteps)
	}

	server := api.NewServer(cfg, registry, worlds, mapStore, broadcaster, tracker, factory)

	// Embedded frontend handler: when built with -tags embed, serves
	// from the binary. Otherwise falls back to the filesystem.
	if *devMode {
		cwd, _ := os.Getwd()
		dir := filepath.Join(cwd, "internal", "frontend", "static")
		log.Printf("Serving frontend from %s", dir)
		server.SetFrontend(http.FileServer(http.Dir(dir)))
	} else if h := frontend.Handler(); h != nil {
		server.SetFrontend(h)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		if runner, ok := registry.Current(); ok {
			if err := runner.Stop(); err == nil {
				log.Println("Stopping active session")
			}
			// Give the worker a moment to deliver the stopped event to
			// its consumer before the process goes away.
			select {
			case <-runner.Done():
			case <-time.After(2 * time.Second):
				log.Println("Session did not drain in time")
			}
		}
		os.Exit(0)
	}()

	if err := api.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
