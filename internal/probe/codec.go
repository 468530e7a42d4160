package probe

import (
	"errors"
	"fmt"
	"net"
	"time"

	"Go2NetGuard/internal/model"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the packet metadata message.
const (
	fieldTimestamp protowire.Number = 1 // unix nanoseconds
	fieldSrcIP     protowire.Number = 2
	fieldDstIP     protowire.Number = 3
	fieldSrcPort   protowire.Number = 4
	fieldDstPort   protowire.Number = 5
	fieldProtocol  protowire.Number = 6
	fieldLength    protowire.Number = 7
	fieldTCPFlags  protowire.Number = 8
	fieldDNSQLen   protowire.Number = 9
)

// MarshalPacket encodes meta in protobuf wire format.
func MarshalPacket(meta *model.PacketMeta) []byte {
	b := make([]byte, 0, 48)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(meta.Timestamp.UnixNano()))
	if ip := compactIP(meta.SrcIP); len(ip) > 0 {
		b = protowire.AppendTag(b, fieldSrcIP, protowire.BytesType)
		b = protowire.AppendBytes(b, ip)
	}
	if ip := compactIP(meta.DstIP); len(ip) > 0 {
		b = protowire.AppendTag(b, fieldDstIP, protowire.BytesType)
		b = protowire.AppendBytes(b, ip)
	}
	b = appendUint(b, fieldSrcPort, uint64(meta.SrcPort))
	b = appendUint(b, fieldDstPort, uint64(meta.DstPort))
	b = appendUint(b, fieldProtocol, uint64(meta.Protocol))
	b = appendUint(b, fieldLength, uint64(meta.Length))
	b = appendUint(b, fieldTCPFlags, uint64(meta.TCPFlags))
	b = appendUint(b, fieldDNSQLen, uint64(meta.DNSQueryLen))
	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func compactIP(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// UnmarshalPacket decodes a message produced by MarshalPacket. Unknown
// fields are skipped.
func UnmarshalPacket(b []byte) (*model.PacketMeta, error) {
	meta := &model.PacketMeta{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num != fieldSrcIP && num != fieldDstIP:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid varint for field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			setVarint(meta, num, v)
		case typ == protowire.BytesType && (num == fieldSrcIP || num == fieldDstIP):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("invalid bytes for field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if len(v) != net.IPv4len && len(v) != net.IPv6len {
				return nil, fmt.Errorf("field %d: bad address length %d", num, len(v))
			}
			ip := append(net.IP(nil), v...)
			if num == fieldSrcIP {
				meta.SrcIP = ip
			} else {
				meta.DstIP = ip
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if meta.SrcIP == nil {
		return nil, errors.New("packet has no source address")
	}
	return meta, nil
}

func setVarint(meta *model.PacketMeta, num protowire.Number, v uint64) {
	switch num {
	case fieldTimestamp:
		meta.Timestamp = time.Unix(0, int64(v)).UTC()
	case fieldSrcPort:
		meta.SrcPort = uint16(v)
	case fieldDstPort:
		meta.DstPort = uint16(v)
	case fieldProtocol:
		meta.Protocol = uint8(v)
	case fieldLength:
		meta.Length = int(v)
	case fieldTCPFlags:
		meta.TCPFlags = uint8(v)
	case fieldDNSQLen:
		meta.DNSQueryLen = int(v)
	}
}
