// Package parser decodes a single raw IP frame into model.PacketMetadata.
// Parse is a pure function: it never mutates shared state and fails
// soft, returning ok=false only when the bytes cannot be read as an IP
// packet at all (empty, unknown version with no hint, too short, or an
// IPv4 IHL below 5). Anything parseable yields best-effort
// metadata even if DNS/TLS/QUIC annotation extraction fails partway
// through.
package parser

import "github.com/kleaSCM/tunnelscope/internal/model"

// IPVersionHint lets a caller that already knows the frame's IP
// version (e.g. from an outer tunnel header) skip byte-0 sniffing.
type IPVersionHint int

const (
	HintNone IPVersionHint = iota
	HintV4
	HintV6
)

const (
	protoTCP = 6
	protoUDP = 17
)

// Parse decodes raw into PacketMetadata. ok is false only when bytes
// cannot be interpreted as any IP packet (empty, or too short for even
// a minimal header after applying the hint).
func Parse(raw []byte, hint IPVersionHint) (meta *model.PacketMetadata, ok bool) {
	if len(raw) == 0 {
		return nil, false
	}

	version := raw[0] >> 4
	switch version {
	case 4:
		return parseIPv4(raw)
	case 6:
		return parseIPv6(raw)
	}

	switch hint {
	case HintV4:
		return parseIPv4(raw)
	case HintV6:
		return parseIPv6(raw)
	default:
		return nil, false
	}
}
