// Package live opens network interfaces for capture.
package live

import (
	"errors"
	"fmt"
	"time"

	"Go2NetGuard/internal/config"
	pcapreader "Go2NetGuard/pkg/pcap"

	"github.com/google/gopacket/pcap"
)

// readTimeout bounds each blocking read so the read loop can notice
// cancellation.
const readTimeout = 500 * time.Millisecond

// Open starts a live capture on cfg.Interface, applying cfg.BPFFilter.
func Open(cfg config.CaptureConfig) (*pcapreader.Reader, error) {
	if cfg.Interface == "" {
		return nil, errors.New("capture interface is required")
	}
	handle, err := pcap.OpenLive(cfg.Interface, cfg.SnapshotLen, cfg.Promiscuous, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", cfg.Interface, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("invalid bpf filter %q: %w", cfg.BPFFilter, err)
		}
	}
	retry := func(err error) bool {
		return errors.Is(err, pcap.NextErrorTimeoutExpired)
	}
	return pcapreader.NewSourceReader(handle, handle.LinkType(), handle.Close, retry), nil
}
