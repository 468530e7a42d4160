package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	"Go2NetGuard/internal/query"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	log.Println("Starting ns-recorder...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	writer, err := query.NewClickHouseWriter(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create ClickHouse writer: %v", err)
	}
	defer writer.Close()

	sub, err := probe.NewThreatSubscriber(cfg.NATS, "ns-recorder")
	if err != nil {
		log.Fatalf("Failed to create threat subscriber: %v", err)
	}

	var written, failed atomic.Uint64
	handler := func(t model.Threat) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := writer.WriteThreat(ctx, t); err != nil {
			failed.Add(1)
			logger.Errorf("Failed to store threat %s: %v", t.ID, err)
			return
		}
		written.Add(1)
		logger.Debugf("Stored %s threat from %s", t.ThreatType, t.SrcIP)
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Threat subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Infof("Shutdown signal received, stopping recorder...")
	sub.Close()
	logger.Infof("Shutdown complete. %d threats stored, %d failed.", written.Load(), failed.Load())
}
