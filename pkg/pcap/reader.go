// Package pcap replays capture files into packet metadata.
package pcap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/logger"
	"Go2NetGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// Stats counts what a replay saw.
type Stats struct {
	Read    int
	Parsed  int
	Skipped int
}

// Reader parses packets from a capture file or any other packet data source.
type Reader struct {
	source gopacket.PacketDataSource
	link   gopacket.Decoder
	close  func()
	// retry reports read errors that should be skipped rather than end the
	// read loop, such as live capture timeouts.
	retry func(error) bool
}

// NewSourceReader wraps an already open source.
func NewSourceReader(source gopacket.PacketDataSource, link gopacket.Decoder, closeFn func(), retry func(error) bool) *Reader {
	return &Reader{source: source, link: link, close: closeFn, retry: retry}
}

// NewReader opens filePath and detects its format.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r := &Reader{close: func() { f.Close() }}

	if pr, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		r.source, r.link = pr, pr.LinkType()
		return r, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	ng, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is neither pcap nor pcapng: %w", filePath, err)
	}
	r.source, r.link = ng, ng.LinkType()
	return r, nil
}

// Close releases the underlying source.
func (r *Reader) Close() {
	if r.close != nil {
		r.close()
	}
}

// ReadPackets parses every packet of the source and sends the metadata to
// out until the source is exhausted or ctx is done. Packets the parser does
// not understand are counted and skipped. out is closed on return.
func (r *Reader) ReadPackets(ctx context.Context, out chan<- *model.PacketMeta) (Stats, error) {
	defer close(out)

	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}
		data, ci, err := r.source.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil && r.retry != nil && r.retry(err) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Read+1, err)
		}
		stats.Read++

		packet := gopacket.NewPacket(data, r.link, gopacket.NoCopy)
		packet.Metadata().CaptureInfo = ci
		meta, err := protocol.ParsePacket(packet)
		if err != nil {
			stats.Skipped++
			logger.Debugf("Skipping packet %d: %v", stats.Read, err)
			continue
		}
		stats.Parsed++
		select {
		case out <- meta:
		case <-ctx.Done():
			return stats, nil
		}
	}
}
