package parser

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

// QUIC Initial-secret salts, RFC 9001 §5.2 (v1) and RFC 9369 §3.3.1 (v2).
var (
	initialSaltV1 = []byte{0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3, 0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad, 0xcc, 0xbb, 0x7f, 0x0a}
	initialSaltV2 = []byte{0x0d, 0xed, 0xe3, 0xde, 0xf7, 0x00, 0xa6, 0xdb, 0x81, 0x93, 0x81, 0xbe, 0x6e, 0x26, 0x9d, 0xcb, 0xf9, 0xbd, 0x2e, 0xd9}
)

// keyLabels gives the HKDF-Expand-Label names used to derive the
// packet-protection key/iv/hp secrets from the per-direction initial
// secret. v2 renames these per RFC 9369 §3.3.2; the "client in"/
// "server in" labels for deriving the initial secret itself are
// unchanged across versions.
type keyLabels struct {
	key, iv, hp string
}

var labelsV1 = keyLabels{key: "quic key", iv: "quic iv", hp: "quic hp"}
var labelsV2 = keyLabels{key: "quicv2 key", iv: "quicv2 iv", hp: "quicv2 hp"}

// decryptInitialSNI removes header protection and AEAD-decrypts a QUIC
// Initial packet to look for a TLS ClientHello SNI in its CRYPTO
// frames. payload is the full QUIC packet starting at its first byte;
// headerEnd is the offset immediately after the source connection ID
// (the start of the token-length field for an Initial packet). Any
// failure — malformed varints, decrypt failure, no SNI in the CRYPTO
// frame data — returns ok=false and never panics.
func decryptInitialSNI(payload []byte, headerEnd int, version uint32, dcid []byte) (string, bool) {
	offset := headerEnd
	tokenLen, n, ok := readVarInt(payload[offset:])
	if !ok {
		return "", false
	}
	offset += n + int(tokenLen)
	if offset > len(payload) {
		return "", false
	}

	packetLen, n, ok := readVarInt(payload[offset:])
	if !ok {
		return "", false
	}
	offset += n
	pnOffset := offset
	packetEnd := pnOffset + int(packetLen)
	if packetEnd > len(payload) {
		packetEnd = len(payload)
	}

	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(payload) {
		return "", false
	}
	sample := payload[sampleOffset : sampleOffset+16]

	labels := labelsV1
	salt := initialSaltV1
	if version == quicVersion2 {
		labels = labelsV2
		salt = initialSaltV2
	}

	key, iv, hp, err := deriveClientInitialKeys(dcid, salt, labels)
	if err != nil {
		return "", false
	}

	hpBlock, err := aes.NewCipher(hp)
	if err != nil {
		return "", false
	}
	mask := make([]byte, 16)
	hpBlock.Encrypt(mask, sample)

	firstByte := payload[0] ^ (mask[0] & 0x0f)
	pnLen := int(firstByte&0x03) + 1
	if pnOffset+pnLen > len(payload) {
		return "", false
	}

	pnBytes := make([]byte, pnLen)
	for i := 0; i < pnLen; i++ {
		pnBytes[i] = payload[pnOffset+i] ^ mask[1+i]
	}
	var packetNumber uint64
	for _, b := range pnBytes {
		packetNumber = packetNumber<<8 | uint64(b)
	}

	aad := make([]byte, pnOffset+pnLen)
	copy(aad, payload[:pnOffset])
	aad[0] = firstByte
	copy(aad[pnOffset:], pnBytes)

	if pnOffset+pnLen > packetEnd {
		return "", false
	}
	ciphertext := payload[pnOffset+pnLen : packetEnd]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false
	}

	nonce := make([]byte, 12)
	copy(nonce, iv)
	binary.BigEndian.PutUint64(nonce[4:], packetNumber)
	for i := range nonce[:4] {
		nonce[i] ^= 0
	}
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= iv[4+i]
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", false
	}

	return sniFromCryptoFrames(plaintext)
}

func deriveClientInitialKeys(dcid, salt []byte, labels keyLabels) (key, iv, hp []byte, err error) {
	initialSecret := hkdf.Extract(sha256.New, dcid, salt)
	clientSecret := hkdfExpandLabel(initialSecret, "client in", 32)
	key = hkdfExpandLabel(clientSecret, labels.key, 16)
	iv = hkdfExpandLabel(clientSecret, labels.iv, 12)
	hp = hkdfExpandLabel(clientSecret, labels.hp, 16)
	return key, iv, hp, nil
}

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446
// §7.1) with an empty Context, as QUIC key derivation requires.
func hkdfExpandLabel(secret []byte, label string, length int) []byte {
	fullLabel := "tls13 " + label
	info := make([]byte, 0, 2+1+len(fullLabel)+1)
	lengthPrefix := make([]byte, 2)
	binary.BigEndian.PutUint16(lengthPrefix, uint16(length))
	info = append(info, lengthPrefix...)
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, 0) // empty Context

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	_, _ = io.ReadFull(r, out)
	return out
}

const frameTypeCrypto = 0x06

// sniFromCryptoFrames scans decrypted Initial-packet payload for
// CRYPTO frames, copies each into one buffer at its stream offset
// (a single-frame ClientHello is still copied once), and looks for a
// ClientHello SNI in the result.
func sniFromCryptoFrames(plaintext []byte) (string, bool) {
	type chunk struct {
		offset uint64
		data   []byte
	}
	var chunks []chunk

	offset := 0
	for offset < len(plaintext) {
		frameType := plaintext[offset]
		switch {
		case frameType == 0x00: // PADDING
			offset++
			continue
		case frameType == 0x01: // PING
			offset++
			continue
		case frameType == frameTypeCrypto:
			offset++
			cryptoOffset, n, ok := readVarInt(plaintext[offset:])
			if !ok {
				return "", false
			}
			offset += n
			length, n, ok := readVarInt(plaintext[offset:])
			if !ok {
				return "", false
			}
			offset += n
			if offset+int(length) > len(plaintext) {
				return "", false
			}
			chunks = append(chunks, chunk{offset: cryptoOffset, data: plaintext[offset : offset+int(length)]})
			offset += int(length)
		default:
			// Any other frame type ends the scan: we only care about
			// the leading CRYPTO frame(s) of an Initial packet.
			offset = len(plaintext)
		}
	}

	if len(chunks) == 0 {
		return "", false
	}
	// Reassemble by offset into a buffer sized to the furthest chunk end.
	total := 0
	for _, c := range chunks {
		end := int(c.offset) + len(c.data)
		if end > total {
			total = end
		}
	}
	buf := make([]byte, total)
	for _, c := range chunks {
		copy(buf[c.offset:], c.data)
	}

	return parseClientHelloHandshakeBody(buf)
}
