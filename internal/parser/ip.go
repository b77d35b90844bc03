package parser

import (
	"encoding/binary"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
	"github.com/kleaSCM/tunnelscope/internal/model"
)

func parseIPv4(raw []byte) (*model.PacketMetadata, bool) {
	if len(raw) < 20 {
		return nil, false
	}
	ihl := int(raw[0] & 0x0f)
	if ihl < 5 {
		return nil, false
	}
	headerLen := ihl * 4
	if len(raw) < headerLen {
		return nil, false
	}

	totalLen := int(binary.BigEndian.Uint16(raw[2:4]))
	proto := raw[9]
	src, _ := ipaddr.FromBytes(raw[12:16])
	dst, _ := ipaddr.FromBytes(raw[16:20])

	meta := &model.PacketMetadata{
		IPVersion:  model.IPv4,
		Transport:  proto,
		SrcAddress: src,
		DstAddress: dst,
		Length:     totalLen,
	}
	if meta.Length == 0 {
		meta.Length = len(raw)
	}

	payload := raw[headerLen:]
	if totalLen >= headerLen && len(raw) >= totalLen {
		payload = raw[headerLen:totalLen]
	}
	decodeTransport(meta, proto, payload)
	return meta, true
}

// IPv6 extension headers that precede the real upper-layer header.
const (
	extHopByHop    = 0
	extRouting     = 43
	extFragment    = 44
	extDestOptions = 60
	extAH          = 51
)

func parseIPv6(raw []byte) (*model.PacketMetadata, bool) {
	if len(raw) < 40 {
		return nil, false
	}
	payloadLen := int(binary.BigEndian.Uint16(raw[4:6]))
	nextHeader := raw[6]
	src, _ := ipaddr.FromBytes(raw[8:24])
	dst, _ := ipaddr.FromBytes(raw[24:40])

	meta := &model.PacketMetadata{
		IPVersion:  model.IPv6,
		SrcAddress: src,
		DstAddress: dst,
		Length:     40 + payloadLen,
	}

	offset := 40
	header := nextHeader
	for {
		switch header {
		case extHopByHop, extRouting, extDestOptions, extAH:
			if offset+2 > len(raw) {
				meta.Transport = header
				return meta, true
			}
			nh := raw[offset]
			var extLen int
			if header == extAH {
				extLen = (int(raw[offset+1]) + 2) * 4
			} else {
				extLen = (int(raw[offset+1]) + 1) * 8
			}
			if extLen <= 0 || offset+extLen > len(raw) {
				meta.Transport = header
				return meta, true
			}
			offset += extLen
			header = nh
			continue
		case extFragment:
			// Extension present but reassembly is not attempted; walk
			// to the inner header only.
			if offset+8 > len(raw) {
				meta.Transport = header
				return meta, true
			}
			nh := raw[offset]
			offset += 8
			header = nh
			continue
		default:
			meta.Transport = header
			if offset <= len(raw) {
				decodeTransport(meta, header, raw[offset:])
			}
			return meta, true
		}
	}
}
