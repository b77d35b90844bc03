package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
)

func TestPacketSampleJSONRoundTrip(t *testing.T) {
	src := ipaddr.FromV4(10, 0, 0, 2)
	dst := ipaddr.FromV4(1, 1, 1, 1)
	srcPort := uint16(5353)
	dstPort := uint16(53)
	version := uint32(1)

	original := PacketSample{
		Timestamp: 12345.5,
		Direction: Outbound,
		FlowID:    7,
		BurstID:   2,
		Metadata: PacketMetadata{
			IPVersion:                   IPv4,
			Transport:                   17,
			SrcAddress:                  src,
			DstAddress:                  dst,
			SrcPort:                     &srcPort,
			DstPort:                     &dstPort,
			Length:                      64,
			DNSQueryName:                "example.com",
			DNSCname:                    "cdn.example.com",
			DNSAnswerAddresses:          []ipaddr.IPAddress{ipaddr.FromV4(93, 184, 216, 34)},
			RegistrableDomain:           "example.com",
			TLSServerName:               "example.com",
			QUICVersion:                 &version,
			QUICPacketType:              QUICInitial,
			QUICDestinationConnectionID: []byte{0x83, 0x94, 0xc8, 0xf0},
			QUICSourceConnectionID:      []byte{0x01, 0x02},
		},
		BurstMetrics: &BurstMetrics{
			PacketCount:      3,
			ByteCount:        192,
			DurationMs:       1000,
			PacketsPerSecond: 3,
			BytesPerSecond:   192,
		},
		TrafficClassification: &TrafficClassification{
			Label:      "test-app",
			Domain:     "example.com",
			Confidence: 1,
			Reasons:    []string{"dns=example.com", "app=test-app"},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded PacketSample
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, original.Timestamp, decoded.Timestamp)
	require.Equal(t, original.Direction, decoded.Direction)
	require.Equal(t, original.FlowID, decoded.FlowID)
	require.Equal(t, original.BurstID, decoded.BurstID)
	require.Equal(t, original.Metadata.IPVersion, decoded.Metadata.IPVersion)
	require.Equal(t, original.Metadata.Transport, decoded.Metadata.Transport)
	require.True(t, original.Metadata.SrcAddress.Equal(decoded.Metadata.SrcAddress))
	require.True(t, original.Metadata.DstAddress.Equal(decoded.Metadata.DstAddress))
	require.Equal(t, *original.Metadata.SrcPort, *decoded.Metadata.SrcPort)
	require.Equal(t, *original.Metadata.DstPort, *decoded.Metadata.DstPort)
	require.Equal(t, original.Metadata.DNSQueryName, decoded.Metadata.DNSQueryName)
	require.Equal(t, original.Metadata.DNSCname, decoded.Metadata.DNSCname)
	require.Len(t, decoded.Metadata.DNSAnswerAddresses, 1)
	require.True(t, original.Metadata.DNSAnswerAddresses[0].Equal(decoded.Metadata.DNSAnswerAddresses[0]))
	require.Equal(t, original.Metadata.RegistrableDomain, decoded.Metadata.RegistrableDomain)
	require.Equal(t, original.Metadata.TLSServerName, decoded.Metadata.TLSServerName)
	require.Equal(t, *original.Metadata.QUICVersion, *decoded.Metadata.QUICVersion)
	require.Equal(t, original.Metadata.QUICPacketType, decoded.Metadata.QUICPacketType)
	require.Equal(t, original.Metadata.QUICDestinationConnectionID, decoded.Metadata.QUICDestinationConnectionID)
	require.Equal(t, original.Metadata.QUICSourceConnectionID, decoded.Metadata.QUICSourceConnectionID)
	require.Equal(t, original.BurstMetrics, decoded.BurstMetrics)
	require.Equal(t, original.TrafficClassification, decoded.TrafficClassification)
}

func TestPacketSampleJSONOmitsAbsentOptionalFields(t *testing.T) {
	original := PacketSample{
		Timestamp: 1.0,
		Direction: Inbound,
		Metadata: PacketMetadata{
			IPVersion: IPv4,
			Transport: 6,
		},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotContains(t, raw, "dnsQueryName")
	require.NotContains(t, raw, "tlsServerName")
	require.NotContains(t, raw, "burstMetrics")
	require.NotContains(t, raw, "trafficClassification")
}

func TestNewFlowKeyDirectionInsensitive(t *testing.T) {
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)

	forward := NewFlowKey(a, b, 1234, 53, 17)
	reverse := NewFlowKey(b, a, 53, 1234, 17)
	require.Equal(t, forward, reverse)
}

func TestHasDNS(t *testing.T) {
	m := PacketMetadata{}
	require.False(t, m.HasDNS())
	m.DNSQueryName = "example.com"
	require.True(t, m.HasDNS())
}
