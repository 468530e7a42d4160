package model

import (
	"net"
	"time"
)

// TCP flag bits carried in PacketMeta.TCPFlags.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

// IP protocol numbers used by the detection path.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// PacketMeta holds the metadata extracted from a single captured packet.
// Wire parsing is done by the capture layer; everything downstream consumes this.
type PacketMeta struct {
	Timestamp   time.Time
	SrcIP       net.IP
	DstIP       net.IP
	SrcPort     uint16
	DstPort     uint16
	Protocol    uint8
	Length      int
	TCPFlags    uint8
	DNSQueryLen int // length of the first DNS question name, 0 if none
}

// IsSYN reports a connection attempt: SYN set, ACK unset.
func (p *PacketMeta) IsSYN() bool {
	return p.TCPFlags&FlagSYN != 0 && p.TCPFlags&FlagACK == 0
}

// ProtocolName returns the label used in threat events.
func (p *PacketMeta) ProtocolName() string {
	return ProtocolName(p.Protocol)
}

// ProtocolName maps an IP protocol number to the label used in threat events.
func ProtocolName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoICMP:
		return "ICMP"
	default:
		return "OTHER"
	}
}

// FlowRecord is the aggregate of traffic observed from one source address
// within the current analysis window.
type FlowRecord struct {
	Src         string
	PacketCount uint64
	ByteCount   uint64
	Ports       map[uint16]struct{}
	DstIPs      map[string]struct{}
	WindowStart time.Time
	LastSeen    time.Time
	SynCount    uint64
	AlertCount  uint64
	LastAlert   time.Time // survives Reset so the cooldown keeps holding
}

// NewFlowRecord returns an empty record whose window starts at now.
func NewFlowRecord(src string, now time.Time) *FlowRecord {
	return &FlowRecord{
		Src:         src,
		Ports:       make(map[uint16]struct{}),
		DstIPs:      make(map[string]struct{}),
		WindowStart: now,
		LastSeen:    now,
	}
}

// Clone returns a deep copy of the record.
func (r *FlowRecord) Clone() FlowRecord {
	c := *r
	c.Ports = make(map[uint16]struct{}, len(r.Ports))
	for p := range r.Ports {
		c.Ports[p] = struct{}{}
	}
	c.DstIPs = make(map[string]struct{}, len(r.DstIPs))
	for ip := range r.DstIPs {
		c.DstIPs[ip] = struct{}{}
	}
	return c
}

// FeatureVector is the fixed-width numeric summary of a flow.
type FeatureVector struct {
	PacketCount      float64 `json:"packet_count"`
	ByteCount        float64 `json:"byte_count"`
	UniquePorts      float64 `json:"unique_ports"`
	UniqueDstIPs     float64 `json:"unique_dst_ips"`
	PacketsPerSecond float64 `json:"packets_per_sec"`
	BytesPerSecond   float64 `json:"bytes_per_sec"`
	SynCount         float64 `json:"syn_count"`
	DurationSeconds  float64 `json:"duration"`
}

// FeatureCount is the width of FeatureVector.Slice.
const FeatureCount = 8

// FeatureNames lists the columns of FeatureVector.Slice in order.
var FeatureNames = [FeatureCount]string{
	"packet_count", "byte_count", "unique_ports", "unique_dst_ips",
	"packets_per_sec", "bytes_per_sec", "syn_count", "duration",
}

// Slice returns the vector in FeatureNames order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.PacketCount, f.ByteCount, f.UniquePorts, f.UniqueDstIPs,
		f.PacketsPerSecond, f.BytesPerSecond, f.SynCount, f.DurationSeconds,
	}
}

// FeatureVectorFromSlice is the inverse of Slice.
func FeatureVectorFromSlice(v []float64) FeatureVector {
	var f FeatureVector
	if len(v) < FeatureCount {
		return f
	}
	f.PacketCount, f.ByteCount, f.UniquePorts, f.UniqueDstIPs = v[0], v[1], v[2], v[3]
	f.PacketsPerSecond, f.BytesPerSecond, f.SynCount, f.DurationSeconds = v[4], v[5], v[6], v[7]
	return f
}
