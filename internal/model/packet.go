// Package model defines the data types shared across the analytics
// pipeline: parsed packet metadata, flow keys, burst metrics, traffic
// classifications, and the samples handed off to the ring buffer and
// the append-only stream.
package model

import "github.com/kleaSCM/tunnelscope/internal/ipaddr"

// IPVersion identifies the network-layer version of a parsed packet.
type IPVersion int

const (
	IPVersionUnknown IPVersion = iota
	IPv4
	IPv6
)

// QUICPacketType is the long-header packet type, normalized across
// QUIC v1 and v2's different 2-bit type-field mappings.
type QUICPacketType int

const (
	QUICPacketTypeNone QUICPacketType = iota
	QUICInitial
	QUICZeroRTT
	QUICHandshake
	QUICRetry
)

func (t QUICPacketType) String() string {
	switch t {
	case QUICInitial:
		return "initial"
	case QUICZeroRTT:
		return "zeroRTT"
	case QUICHandshake:
		return "handshake"
	case QUICRetry:
		return "retry"
	default:
		return ""
	}
}

// PacketMetadata is the pure output of the packet parser: everything
// that can be learned from a single IP frame before flow tracking,
// burst accounting, or classification are applied.
type PacketMetadata struct {
	IPVersion IPVersion
	Transport uint8 // IP protocol number, e.g. 6=TCP, 17=UDP

	SrcAddress ipaddr.IPAddress
	DstAddress ipaddr.IPAddress

	SrcPort *uint16
	DstPort *uint16

	Length int

	DNSQueryName       string
	DNSCname           string
	DNSAnswerAddresses []ipaddr.IPAddress
	RegistrableDomain  string

	TLSServerName string

	QUICVersion                 *uint32
	QUICPacketType              QUICPacketType
	QUICDestinationConnectionID []byte
	QUICSourceConnectionID      []byte
}

// HasDNS reports whether any DNS annotation was extracted.
func (m *PacketMetadata) HasDNS() bool {
	return m.DNSQueryName != "" || m.DNSCname != "" || len(m.DNSAnswerAddresses) > 0
}
