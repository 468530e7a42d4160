package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	pcapreader "Go2NetGuard/pkg/pcap"
	"Go2NetGuard/pkg/pcap/live"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	mode := flag.String("mode", "pub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides capture.interface).")
	file := flag.String("pcap", "", "Publish packets from a pcap file instead of a live interface.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Logging.Enabled, cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runProbe(cfg, *file)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets and publishes their metadata to NATS.
func runProbe(cfg *config.Config, file string) {
	var (
		reader *pcapreader.Reader
		err    error
	)
	if file != "" {
		logger.Infof("Starting ns-probe in PROBE mode on file: %s", file)
		reader, err = pcapreader.NewReader(file)
	} else {
		if cfg.Capture.Interface == "" {
			logger.Errorf("-iface flag or capture.interface is required for probe mode.")
			flag.Usage()
			os.Exit(1)
		}
		logger.Infof("Starting ns-probe in PROBE mode on interface: %s", cfg.Capture.Interface)
		reader, err = live.Open(cfg.Capture)
	}
	if err != nil {
		log.Fatalf("Failed to open packet source: %v", err)
	}
	defer reader.Close()

	pub, err := probe.NewPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	logger.Infof("Capture started successfully. Publishing packets to NATS...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *model.PacketMeta, 1024)
	go func() {
		stats, err := reader.ReadPackets(ctx, out)
		if err != nil {
			logger.Errorf("Capture failed: %v", err)
		}
		logger.Infof("Capture finished: %d read, %d parsed, %d skipped", stats.Read, stats.Parsed, stats.Skipped)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		published := 0
		for meta := range out {
			if err := pub.Publish(meta); err != nil {
				logger.Warnf("Failed to publish packet: %v", err)
				continue
			}
			published++
			if published%1000 == 0 {
				logger.Infof("%d packets published...", published)
			}
		}
	}()

	// Wait for a shutdown signal or the end of a file
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Infof("Shutdown signal received, cleaning up...")
	case <-done:
	}
	cancel()
	<-done
}

// runSubscriber prints every packet received from NATS.
func runSubscriber(cfg *config.Config) {
	logger.Infof("Starting ns-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(meta *model.PacketMeta) {
		logger.Infof("Received Packet: %s:%d -> %s:%d proto=%d len=%d flags=%#x",
			meta.SrcIP, meta.SrcPort, meta.DstIP, meta.DstPort, meta.Protocol, meta.Length, meta.TCPFlags)
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Infof("Shutdown signal received, cleaning up...")
}
