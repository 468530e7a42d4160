package protocol

import (
	"errors"
	"time"

	"Go2NetGuard/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotIPv4 is returned for frames without an IPv4 layer.
var ErrNotIPv4 = errors.New("not an IPv4 packet")

// Parse decodes a raw Ethernet frame captured at ts.
func Parse(data []byte, ts time.Time) (*model.PacketMeta, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	meta, err := ParsePacket(packet)
	if err != nil {
		return nil, err
	}
	if !ts.IsZero() {
		meta.Timestamp = ts
	}
	return meta, nil
}

// ParsePacket uses gopacket to extract the metadata the detection pipeline
// needs from a decoded packet.
func ParsePacket(packet gopacket.Packet) (*model.PacketMeta, error) {
	meta := &model.PacketMeta{
		Timestamp: time.Now(), // Default to now, will be overwritten by packet metadata if available
		Length:    len(packet.Data()),
	}
	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		meta.Timestamp = md.Timestamp
	}

	// Get IPv4 layer
	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		return nil, ErrNotIPv4
	}
	ip := l.(*layers.IPv4)
	meta.SrcIP = ip.SrcIP
	meta.DstIP = ip.DstIP
	meta.Protocol = uint8(ip.Protocol)

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		meta.SrcPort = uint16(tcp.SrcPort)
		meta.DstPort = uint16(tcp.DstPort)
		meta.TCPFlags = tcpFlags(tcp)
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		meta.SrcPort = uint16(udp.SrcPort)
		meta.DstPort = uint16(udp.DstPort)
	}

	if l := packet.Layer(layers.LayerTypeDNS); l != nil {
		dns := l.(*layers.DNS)
		if len(dns.Questions) > 0 {
			// Count the trailing root dot of the fully qualified name.
			meta.DNSQueryLen = len(dns.Questions[0].Name) + 1
		}
	}

	return meta, nil
}

func tcpFlags(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= model.FlagFIN
	}
	if tcp.SYN {
		f |= model.FlagSYN
	}
	if tcp.RST {
		f |= model.FlagRST
	}
	if tcp.PSH {
		f |= model.FlagPSH
	}
	if tcp.ACK {
		f |= model.FlagACK
	}
	if tcp.URG {
		f |= model.FlagURG
	}
	return f
}
