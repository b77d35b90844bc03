package model

import "github.com/kleaSCM/tunnelscope/internal/ipaddr"

// FlowKey is a direction-insensitive 5-tuple: forward and return
// packets on the same conversation normalize to the same key.
type FlowKey struct {
	LowAddress  ipaddr.IPAddress
	HighAddress ipaddr.IPAddress
	LowPort     uint16
	HighPort    uint16
	Transport   uint8
}

// NewFlowKey normalizes a packet's addresses/ports into a canonical
// key shared by both directions of a conversation.
func NewFlowKey(src, dst ipaddr.IPAddress, srcPort, dstPort uint16, transport uint8) FlowKey {
	if src.Less(dst) || (src.Equal(dst) && srcPort <= dstPort) {
		return FlowKey{LowAddress: src, HighAddress: dst, LowPort: srcPort, HighPort: dstPort, Transport: transport}
	}
	return FlowKey{LowAddress: dst, HighAddress: src, LowPort: dstPort, HighPort: srcPort, Transport: transport}
}

// BurstMetrics describes one contiguous span of packets on a flow.
type BurstMetrics struct {
	PacketCount      uint64
	ByteCount        uint64
	DurationMs       int64
	PacketsPerSecond float64
	BytesPerSecond   float64
}
