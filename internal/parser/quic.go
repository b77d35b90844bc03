package parser

import (
	"encoding/binary"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

const (
	quicVersion1 uint32 = 0x00000001
	quicVersion2 uint32 = 0x6b3343cf
)

// quicTypeMaps gives the 2-bit long-header type field's meaning, which
// QUIC v2 (RFC 9369 §3.2) deliberately permutes relative to v1.
var quicTypeMapV1 = map[byte]model.QUICPacketType{
	0: model.QUICInitial,
	1: model.QUICZeroRTT,
	2: model.QUICHandshake,
	3: model.QUICRetry,
}

var quicTypeMapV2 = map[byte]model.QUICPacketType{
	0: model.QUICRetry,
	1: model.QUICInitial,
	2: model.QUICZeroRTT,
	3: model.QUICHandshake,
}

// parseQUIC attempts to decode a UDP payload as a QUIC long-header
// packet. Anything that doesn't look like one (short header, garbage)
// is silently ignored — the packet still has valid IP/UDP metadata.
func parseQUIC(meta *model.PacketMetadata, payload []byte) {
	if len(payload) < 7 {
		return
	}
	if payload[0]&0x80 == 0 {
		return // short header: no version/CIDs to report
	}

	version := binary.BigEndian.Uint32(payload[1:5])
	typeBits := (payload[0] & 0x30) >> 4

	var typeMap map[byte]model.QUICPacketType
	switch version {
	case quicVersion1:
		typeMap = quicTypeMapV1
	case quicVersion2:
		typeMap = quicTypeMapV2
	default:
		typeMap = quicTypeMapV1
	}

	offset := 5
	dcidLen := int(payload[offset])
	offset++
	if offset+dcidLen > len(payload) {
		return
	}
	dcid := append([]byte(nil), payload[offset:offset+dcidLen]...)
	offset += dcidLen

	if offset >= len(payload) {
		return
	}
	scidLen := int(payload[offset])
	offset++
	if offset+scidLen > len(payload) {
		return
	}
	scid := append([]byte(nil), payload[offset:offset+scidLen]...)
	offset += scidLen

	v := version
	meta.QUICVersion = &v
	meta.QUICDestinationConnectionID = dcid
	meta.QUICSourceConnectionID = scid
	meta.QUICPacketType = typeMap[typeBits]

	if meta.QUICPacketType != model.QUICInitial {
		// 0-RTT, Handshake, and Retry packets use keys the parser
		// does not have (or, for Retry, carry no protected payload).
		return
	}

	if sni, ok := decryptInitialSNI(payload, offset, version, dcid); ok {
		meta.TLSServerName = sni
	}
}

func readVarInt(b []byte) (value uint64, n int, ok bool) {
	if len(b) < 1 {
		return 0, 0, false
	}
	prefix := b[0] >> 6
	length := 1 << prefix
	if len(b) < length {
		return 0, 0, false
	}
	v := uint64(b[0] & 0x3f)
	for i := 1; i < length; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v, length, true
}
