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

	"Go2NetGuard/internal/api"
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	listen := flag.String("listen", ":8000", "Address of the dashboard API.")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if !cfg.ClickHouse.Enabled {
		log.Fatalf("clickhouse.enabled is false. API server cannot serve alerts.")
	}
	querier, err := query.NewClickHouseQuerier(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}

	engine, err := api.NewEngineProxy(cfg.API.EngineURL)
	if err != nil {
		log.Fatalf("Failed to create engine proxy: %v", err)
	}

	srv := &api.Server{Alerts: querier, Engine: engine}
	server := &http.Server{
		Addr:    *listen,
		Handler: srv.Router(),
	}

	go func() {
		logger.Infof("API server starting on %s, engine at %s", server.Addr, cfg.API.EngineURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Infof("API server exited.")
}
