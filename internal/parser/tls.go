package parser

import "encoding/binary"

// parseTLSClientHelloSNI extracts the `host_name` SNI extension from a
// TLS ClientHello record carried in a TCP payload. The QUIC Initial
// path, whose CRYPTO frames carry no record header, calls
// parseClientHelloHandshakeBody directly. Any malformed structure
// along the way simply yields ok=false.
func parseTLSClientHelloSNI(payload []byte) (string, bool) {
	if len(payload) < 5 {
		return "", false
	}
	if payload[0] != 22 { // handshake content type
		return "", false
	}
	if payload[1] != 3 { // major version 3.x
		return "", false
	}
	recordLen := int(binary.BigEndian.Uint16(payload[3:5]))
	if recordLen+5 > len(payload) {
		return "", false
	}

	if len(payload) < 9 || payload[5] != 1 { // handshake type: ClientHello
		return "", false
	}

	return parseClientHelloHandshakeBody(payload[5:])
}

// parseClientHelloHandshakeBody parses a bare TLS Handshake message
// (type + 3-byte length + body, no surrounding TLSPlaintext record
// header) for its SNI extension. QUIC CRYPTO frames carry exactly
// this form.
func parseClientHelloHandshakeBody(payload []byte) (string, bool) {
	if len(payload) < 4 || payload[0] != 1 {
		return "", false
	}

	offset := 4 // past handshake header (type + 3-byte length)
	offset += 2 // client version
	offset += 32    // random
	if offset >= len(payload) {
		return "", false
	}

	if offset+1 > len(payload) {
		return "", false
	}
	sessionIDLen := int(payload[offset])
	offset += 1 + sessionIDLen
	if offset > len(payload) {
		return "", false
	}

	if offset+2 > len(payload) {
		return "", false
	}
	cipherSuitesLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
	offset += 2 + cipherSuitesLen
	if offset > len(payload) {
		return "", false
	}

	if offset+1 > len(payload) {
		return "", false
	}
	compMethodsLen := int(payload[offset])
	offset += 1 + compMethodsLen
	if offset > len(payload) {
		return "", false
	}

	if offset+2 > len(payload) {
		return "", false
	}
	extensionsLen := int(binary.BigEndian.Uint16(payload[offset : offset+2]))
	offset += 2

	end := offset + extensionsLen
	if end > len(payload) {
		end = len(payload)
	}

	for offset+4 <= end {
		extType := binary.BigEndian.Uint16(payload[offset : offset+2])
		extLen := int(binary.BigEndian.Uint16(payload[offset+2 : offset+4]))
		offset += 4
		if offset+extLen > end {
			break
		}

		if extType == 0 { // server_name
			if sni, ok := parseServerNameExtension(payload[offset : offset+extLen]); ok {
				return sni, true
			}
		}
		offset += extLen
	}

	return "", false
}

func parseServerNameExtension(ext []byte) (string, bool) {
	if len(ext) < 2 {
		return "", false
	}
	off := 2 // server name list length, unused
	for off+3 <= len(ext) {
		nameType := ext[off]
		nameLen := int(binary.BigEndian.Uint16(ext[off+1 : off+3]))
		off += 3
		if off+nameLen > len(ext) {
			return "", false
		}
		if nameType == 0 { // host_name
			return string(ext[off : off+nameLen]), true
		}
		off += nameLen
	}
	return "", false
}
