package main

import (
	"context"
	"fmt"

	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/pipeline"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/probe"
	pcapreader "Go2NetGuard/pkg/pcap"
	"Go2NetGuard/pkg/pcap/live"
)

// packetSource feeds the pipeline until it is closed or runs dry.
type packetSource interface {
	Done() <-chan struct{}
	Close()
}

// natsSource never finishes on its own.
type natsSource struct {
	sub  *probe.Subscriber
	done chan struct{}
}

func (s *natsSource) Done() <-chan struct{} { return s.done }
func (s *natsSource) Close()                { s.sub.Close() }

// readerSource replays a capture file or a live interface.
type readerSource struct {
	reader *pcapreader.Reader
	done   chan struct{}
}

func (s *readerSource) Done() <-chan struct{} { return s.done }

func (s *readerSource) Close() {
	<-s.done
	s.reader.Close()
}

func startSource(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline) (packetSource, error) {
	switch cfg.Capture.Source {
	case "nats":
		sub, err := probe.NewSubscriber(cfg.NATS)
		if err != nil {
			return nil, err
		}
		if err := sub.Start(func(meta *model.PacketMeta) { p.Input(meta) }); err != nil {
			sub.Close()
			return nil, err
		}
		return &natsSource{sub: sub, done: make(chan struct{})}, nil

	case "live":
		reader, err := live.Open(cfg.Capture)
		if err != nil {
			return nil, err
		}
		logger.Infof("Capturing live on %s", cfg.Capture.Interface)
		return runReader(ctx, reader, p, false), nil

	case "pcap":
		reader, err := pcapreader.NewReader(cfg.Capture.PcapFile)
		if err != nil {
			return nil, err
		}
		logger.Infof("Replaying %s", cfg.Capture.PcapFile)
		return runReader(ctx, reader, p, true), nil
	}
	return nil, fmt.Errorf("unknown capture source %q", cfg.Capture.Source)
}

// runReader pumps reader into the pipeline. Offline replays wait for queue
// room; live capture drops under back-pressure like the NATS path.
func runReader(ctx context.Context, reader *pcapreader.Reader, p *pipeline.Pipeline, wait bool) *readerSource {
	src := &readerSource{reader: reader, done: make(chan struct{})}
	out := make(chan *model.PacketMeta, 1024)

	go func() {
		stats, err := reader.ReadPackets(ctx, out)
		if err != nil {
			logger.Errorf("Packet source failed: %v", err)
		}
		logger.Infof("Packet source finished: %d read, %d parsed, %d skipped", stats.Read, stats.Parsed, stats.Skipped)
	}()

	go func() {
		defer close(src.done)
		for meta := range out {
			if !wait {
				p.Input(meta)
				continue
			}
			if err := p.InputWait(ctx, meta); err != nil {
				for range out {
				}
				return
			}
		}
	}()
	return src
}
