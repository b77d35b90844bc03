package parser

import (
	"encoding/binary"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

func decodeTransport(meta *model.PacketMetadata, proto uint8, payload []byte) {
	switch proto {
	case protoTCP:
		decodeTCP(meta, payload)
	case protoUDP:
		decodeUDP(meta, payload)
	}
}

func ptrU16(v uint16) *uint16 { return &v }

// decodeTCP extracts ports and, if the segment opens with a TLS
// ClientHello, the SNI extension.
func decodeTCP(meta *model.PacketMetadata, payload []byte) {
	if len(payload) < 20 {
		return
	}
	srcPort := binary.BigEndian.Uint16(payload[0:2])
	dstPort := binary.BigEndian.Uint16(payload[2:4])
	meta.SrcPort = ptrU16(srcPort)
	meta.DstPort = ptrU16(dstPort)

	dataOffset := int(payload[12]>>4) * 4
	if dataOffset < 20 || dataOffset > len(payload) {
		return
	}
	if sni, ok := parseTLSClientHelloSNI(payload[dataOffset:]); ok {
		meta.TLSServerName = sni
	}
}

// decodeUDP extracts ports and dispatches to DNS or QUIC decoding.
func decodeUDP(meta *model.PacketMetadata, payload []byte) {
	if len(payload) < 8 {
		return
	}
	srcPort := binary.BigEndian.Uint16(payload[0:2])
	dstPort := binary.BigEndian.Uint16(payload[2:4])
	meta.SrcPort = ptrU16(srcPort)
	meta.DstPort = ptrU16(dstPort)

	body := payload[8:]
	if srcPort == 53 || dstPort == 53 {
		parseDNS(meta, body)
		return
	}
	parseQUIC(meta, body)
}
