package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go2NetGuard/internal/adaptive"
	"Go2NetGuard/internal/api"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/flowstore"
	"Go2NetGuard/internal/engine/pipeline"
	"Go2NetGuard/internal/engine/rules"
	"Go2NetGuard/internal/engine/scorer"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/ml"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/notification"
	"Go2NetGuard/internal/probe"
	"Go2NetGuard/internal/response"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	log.Println("Starting ns-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Configuration loaded from %s.", *configPath)

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// 3. Anomaly model
	sc := scorer.New(scorer.BandsFromConfig(cfg.Detection.Anomaly))
	artifacts := ml.NewArtifactStore(cfg.Model.ArtifactDir)
	if cfg.Model.Bootstrap {
		active, err := artifacts.Bootstrap(cfg.Adaptive.BaselineSamples, adaptive.ModelOptions(cfg.Model))
		if err != nil {
			logger.Errorf("Failed to bootstrap anomaly model, ML detection disabled: %v", err)
		} else {
			sc.Swap(active)
			m.SetModelVersion(active.Version)
		}
	} else if err := sc.Load(cfg.Model.ArtifactDir); err != nil {
		logger.Errorf("%v, ML detection disabled", err)
	}

	// 4. Dashboard push, response and retraining
	hub := notification.NewHub()

	var controller *response.Controller
	if cfg.Response.Enabled {
		controller, err = response.NewFromConfig(cfg, hub, m)
		if err != nil {
			log.Fatalf("Failed to create response controller: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var trainer *adaptive.Manager
	if cfg.Adaptive.Enabled {
		trainer = adaptive.NewManager(adaptive.OptionsFromConfig(cfg), artifacts, sc, m)
		trainer.Start(ctx)
	}

	// 5. Pipeline and its sinks
	comps := pipeline.Components{
		Store:   flowstore.New(cfg.Detection.MaxFlows, cfg.Detection.AlertCooldown),
		Rules:   rules.New(rules.ThresholdsFromConfig(cfg.Detection.Rules)),
		Scorer:  sc,
		Sinks:   []model.ThreatSink{pipeline.LogSink{}, hub},
		Metrics: m,
	}
	if controller != nil {
		comps.Responder = controller
	}
	if trainer != nil {
		comps.Adaptive = trainer
	}

	threatPub, err := probe.NewThreatPublisher(cfg.NATS)
	if err != nil {
		logger.Warnf("Threat events will not be published to NATS: %v", err)
	} else {
		comps.Sinks = append(comps.Sinks, threatPub)
	}

	p := pipeline.New(pipeline.OptionsFromConfig(cfg.Detection), comps)
	p.Start()

	// 6. Packet source
	src, err := startSource(ctx, cfg, p)
	if err != nil {
		log.Fatalf("Failed to start %s packet source: %v", cfg.Capture.Source, err)
	}

	// 7. HTTP and gRPC APIs
	srv := &api.Server{
		WebSocket:      http.HandlerFunc(hub.ServeWS),
		Gatherer:       reg,
		RetrainTimeout: 2 * time.Minute,
	}
	if controller != nil {
		srv.Responder = controller
	}
	if trainer != nil {
		srv.Trainer = trainer
	}
	httpServer := &http.Server{Addr: cfg.API.HTTPListenAddr, Handler: srv.Router()}
	go func() {
		logger.Infof("HTTP API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", httpServer.Addr, err)
		}
	}()

	health, err := api.NewGRPCServer(cfg.API.GRPCListenAddr)
	if err != nil {
		log.Fatalf("Failed to start gRPC health server: %v", err)
	}
	go func() {
		if err := health.Serve(); err != nil {
			logger.Errorf("gRPC server stopped: %v", err)
		}
	}()
	health.SetServing(true)
	logger.Infof("ns-engine is running.")

	// 8. Wait for a shutdown signal or the end of an offline replay
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Infof("Shutdown signal received, stopping engine...")
	case <-src.Done():
		logger.Infof("Packet source finished, stopping engine...")
	}

	health.SetServing(false)
	cancel()
	src.Close()
	p.Stop()
	if trainer != nil {
		trainer.Stop()
	}
	if controller != nil {
		controller.Stop()
	}
	hub.Close()
	if threatPub != nil {
		threatPub.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}
	health.Stop()
	logger.Infof("Shutdown complete.")
}
