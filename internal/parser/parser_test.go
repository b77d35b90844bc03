package parser

import (
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

func ipv4Header(totalLen int, proto byte, src, dst [4]byte) []byte {
	h := make([]byte, 20)
	h[0] = 0x45
	binary.BigEndian.PutUint16(h[2:4], uint16(totalLen))
	h[8] = 64 // ttl
	h[9] = proto
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	return h
}

func udpHeader(srcPort, dstPort uint16, payloadLen int) []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	binary.BigEndian.PutUint16(h[4:6], uint16(8+payloadLen))
	return h
}

func tcpHeader(srcPort, dstPort uint16) []byte {
	h := make([]byte, 20)
	binary.BigEndian.PutUint16(h[0:2], srcPort)
	binary.BigEndian.PutUint16(h[2:4], dstPort)
	h[12] = 5 << 4 // data offset: 20 bytes, no options
	return h
}

func dnsName(name string) []byte {
	var out []byte
	for _, label := range splitDots(name) {
		out = append(out, byte(len(label)))
		out = append(out, []byte(label)...)
	}
	return append(out, 0)
}

func splitDots(name string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	return labels
}

func dnsQuery(id uint16, name string) []byte {
	h := make([]byte, 12)
	binary.BigEndian.PutUint16(h[0:2], id)
	binary.BigEndian.PutUint16(h[2:4], 0x0100) // standard query, recursion desired
	binary.BigEndian.PutUint16(h[4:6], 1)       // qdcount
	question := dnsName(name)
	question = append(question, 0, 1) // qtype A
	question = append(question, 0, 1) // qclass IN
	return append(h, question...)
}

func dnsResponseWithA(id uint16, name string, ip [4]byte) []byte {
	h := make([]byte, 12)
	binary.BigEndian.PutUint16(h[0:2], id)
	binary.BigEndian.PutUint16(h[2:4], 0x8180) // response, recursion available
	binary.BigEndian.PutUint16(h[4:6], 1)       // qdcount
	binary.BigEndian.PutUint16(h[6:8], 1)       // ancount

	question := dnsName(name)
	question = append(question, 0, 1, 0, 1)
	msg := append(h, question...)

	// Answer: pointer to offset 12 (the question name), type A, class IN, TTL, rdlength 4, rdata.
	answer := []byte{0xc0, 0x0c}
	answer = append(answer, 0, 1) // type A
	answer = append(answer, 0, 1) // class IN
	answer = append(answer, 0, 0, 0, 60) // ttl
	answer = append(answer, 0, 4)         // rdlength
	answer = append(answer, ip[:]...)
	return append(msg, answer...)
}

func TestParseIPv4UDPDNSQuery(t *testing.T) {
	dns := dnsQuery(0x1234, "example.com")
	udp := append(udpHeader(53124, 53, len(dns)), dns...)
	ip := append(ipv4Header(20+len(udp), protoUDP, [4]byte{10, 0, 0, 2}, [4]byte{8, 8, 8, 8}), udp...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.Equal(t, model.IPv4, meta.IPVersion)
	require.Equal(t, uint8(protoUDP), meta.Transport)
	require.Equal(t, "10.0.0.2", meta.SrcAddress.String())
	require.Equal(t, "8.8.8.8", meta.DstAddress.String())
	require.NotNil(t, meta.SrcPort)
	require.Equal(t, uint16(53124), *meta.SrcPort)
	require.Equal(t, uint16(53), *meta.DstPort)
	require.Equal(t, "example.com", meta.DNSQueryName)
	require.Equal(t, "example.com", meta.RegistrableDomain)
}

func TestParseDNSResponseExtractsAnswerAddress(t *testing.T) {
	dns := dnsResponseWithA(0x1234, "example.com", [4]byte{93, 184, 216, 34})
	udp := append(udpHeader(53, 53124, len(dns)), dns...)
	ip := append(ipv4Header(20+len(udp), protoUDP, [4]byte{8, 8, 8, 8}, [4]byte{10, 0, 0, 2}), udp...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.Equal(t, "example.com", meta.DNSQueryName)
	require.Len(t, meta.DNSAnswerAddresses, 1)
	require.Equal(t, "93.184.216.34", meta.DNSAnswerAddresses[0].String())
}

func TestParseIPv4TooShortRejected(t *testing.T) {
	_, ok := Parse([]byte{0x45, 0, 0}, HintNone)
	require.False(t, ok)
}

func buildClientHello(sni string) []byte {
	random := make([]byte, 32)
	body := []byte{3, 3} // client version
	body = append(body, random...)
	body = append(body, 0) // session id len 0
	body = append(body, 0, 2, 0x13, 0x01) // cipher suites: len 2, TLS_AES_128_GCM_SHA256
	body = append(body, 1, 0)             // compression methods: len 1, null

	nameBytes := []byte(sni)
	serverNameEntry := append([]byte{0, byte(len(nameBytes) >> 8), byte(len(nameBytes))}, nameBytes...)
	serverNameList := append([]byte{byte(len(serverNameEntry) >> 8), byte(len(serverNameEntry))}, serverNameEntry...)
	ext := append([]byte{0, 0}, byte(len(serverNameList)>>8), byte(len(serverNameList)))
	ext = append(ext, serverNameList...)

	body = append(body, byte(len(ext)>>8), byte(len(ext)))
	body = append(body, ext...)

	handshake := append([]byte{1, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}, body...)

	record := append([]byte{22, 3, 1}, byte(len(handshake)>>8), byte(len(handshake)))
	return append(record, handshake...)
}

func TestParseTCPTLSClientHelloSNI(t *testing.T) {
	clientHello := buildClientHello("example.com")
	tcp := append(tcpHeader(443, 443), clientHello...)
	ip := append(ipv4Header(20+len(tcp), protoTCP, [4]byte{10, 0, 0, 2}, [4]byte{93, 184, 216, 34}), tcp...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.Equal(t, "example.com", meta.TLSServerName)
}

func ipv6Header(payloadLen int, nextHeader byte, src, dst [16]byte) []byte {
	h := make([]byte, 40)
	h[0] = 0x60
	binary.BigEndian.PutUint16(h[4:6], uint16(payloadLen))
	h[6] = nextHeader
	h[7] = 64 // hop limit
	copy(h[8:24], src[:])
	copy(h[24:40], dst[:])
	return h
}

func TestParseIPv6HopByHopExtensionChainToTCP(t *testing.T) {
	tcp := tcpHeader(443, 12345)

	// Hop-by-hop extension header: next=TCP(6), hdrExtLen=0 (8 bytes total).
	hopByHop := make([]byte, 8)
	hopByHop[0] = protoTCP
	hopByHop[1] = 0

	payload := append(hopByHop, tcp...)
	var src, dst [16]byte
	src[0], dst[0] = 0x20, 0x20
	ip := append(ipv6Header(len(payload), extHopByHop, src, dst), payload...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.Equal(t, model.IPv6, meta.IPVersion)
	require.Equal(t, uint8(protoTCP), meta.Transport)
	require.NotNil(t, meta.SrcPort)
	require.Equal(t, uint16(443), *meta.SrcPort)
}

func quicLongHeader(version uint32, typeBits byte, dcid, scid []byte) []byte {
	first := byte(0xc0) | (typeBits << 4)
	h := []byte{first}
	verBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(verBytes, version)
	h = append(h, verBytes...)
	h = append(h, byte(len(dcid)))
	h = append(h, dcid...)
	h = append(h, byte(len(scid)))
	h = append(h, scid...)
	return h
}

func TestParseQUICInitialHeaderFields(t *testing.T) {
	dcid, err := hex.DecodeString("8394c8f03e515708")
	require.NoError(t, err)

	quicPacket := quicLongHeader(quicVersion1, 0, dcid, nil)
	quicPacket = append(quicPacket, make([]byte, 32)...) // token len varint + padding, not a valid AEAD payload

	udp := append(udpHeader(51234, 443, len(quicPacket)), quicPacket...)
	ip := append(ipv4Header(20+len(udp), protoUDP, [4]byte{10, 0, 0, 2}, [4]byte{1, 1, 1, 1}), udp...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.NotNil(t, meta.QUICVersion)
	require.Equal(t, quicVersion1, *meta.QUICVersion)
	require.Equal(t, model.QUICInitial, meta.QUICPacketType)
	require.Equal(t, dcid, meta.QUICDestinationConnectionID)
}

func TestParseQUICZeroRTTNeverAttemptsDecryption(t *testing.T) {
	dcid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	quicPacket := quicLongHeader(quicVersion1, 1, dcid, nil) // typeBits=1 -> ZeroRTT in v1's map
	quicPacket = append(quicPacket, make([]byte, 32)...)

	udp := append(udpHeader(51234, 443, len(quicPacket)), quicPacket...)
	ip := append(ipv4Header(20+len(udp), protoUDP, [4]byte{10, 0, 0, 2}, [4]byte{1, 1, 1, 1}), udp...)

	meta, ok := Parse(ip, HintNone)
	require.True(t, ok)
	require.Equal(t, model.QUICZeroRTT, meta.QUICPacketType)
	require.Empty(t, meta.TLSServerName, "0-RTT packets must never be handed to the Initial-only decryptor")
}
