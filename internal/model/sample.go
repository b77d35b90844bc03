package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
)

// Direction is the packet's travel direction relative to the tunnel.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// PacketSample is a PacketMetadata enriched with the tracking and
// classification fields produced downstream, ready for the ring
// buffer, the append-only stream, and the metrics store.
type PacketSample struct {
	Timestamp float64
	Direction Direction

	Metadata PacketMetadata

	FlowID  uint64
	BurstID uint64

	BurstMetrics           *BurstMetrics
	TrafficClassification  *TrafficClassification
}

type sampleJSON struct {
	Timestamp                   float64                `json:"timestamp"`
	Direction                   Direction               `json:"direction"`
	IPVersion                   int                     `json:"ipVersion"`
	Transport                   uint8                   `json:"transport"`
	Length                      int                     `json:"length"`
	FlowID                      uint64                  `json:"flowId"`
	BurstID                     uint64                  `json:"burstId"`
	SrcAddress                  string                  `json:"srcAddress"`
	DstAddress                  string                  `json:"dstAddress"`
	SrcPort                     *uint16                 `json:"srcPort"`
	DstPort                     *uint16                 `json:"dstPort"`
	DNSQueryName                string                  `json:"dnsQueryName,omitempty"`
	DNSCname                    string                  `json:"dnsCname,omitempty"`
	DNSAnswerAddresses          []string                `json:"dnsAnswerAddresses,omitempty"`
	RegistrableDomain           string                  `json:"registrableDomain,omitempty"`
	TLSServerName               string                  `json:"tlsServerName,omitempty"`
	QUICVersion                 *uint32                 `json:"quicVersion,omitempty"`
	QUICPacketType              string                  `json:"quicPacketType,omitempty"`
	QUICDestinationConnectionID string                  `json:"quicDestinationConnectionId,omitempty"`
	QUICSourceConnectionID      string                  `json:"quicSourceConnectionId,omitempty"`
	BurstMetrics                *BurstMetrics           `json:"burstMetrics,omitempty"`
	TrafficClassification       *TrafficClassification  `json:"trafficClassification,omitempty"`
}

// MarshalJSON renders the sample per the PacketSample wire schema.
func (s PacketSample) MarshalJSON() ([]byte, error) {
	m := s.Metadata
	out := sampleJSON{
		Timestamp:              s.Timestamp,
		Direction:              s.Direction,
		Transport:              m.Transport,
		Length:                 m.Length,
		FlowID:                 s.FlowID,
		BurstID:                s.BurstID,
		SrcAddress:             m.SrcAddress.String(),
		DstAddress:             m.DstAddress.String(),
		SrcPort:                m.SrcPort,
		DstPort:                m.DstPort,
		DNSQueryName:           m.DNSQueryName,
		DNSCname:               m.DNSCname,
		RegistrableDomain:      m.RegistrableDomain,
		TLSServerName:          m.TLSServerName,
		QUICVersion:            m.QUICVersion,
		QUICPacketType:         m.QUICPacketType.String(),
		BurstMetrics:           s.BurstMetrics,
		TrafficClassification:  s.TrafficClassification,
	}
	switch m.IPVersion {
	case IPv4:
		out.IPVersion = 4
	case IPv6:
		out.IPVersion = 6
	}
	for _, a := range m.DNSAnswerAddresses {
		out.DNSAnswerAddresses = append(out.DNSAnswerAddresses, a.String())
	}
	if len(m.QUICDestinationConnectionID) > 0 {
		out.QUICDestinationConnectionID = hex.EncodeToString(m.QUICDestinationConnectionID)
	}
	if len(m.QUICSourceConnectionID) > 0 {
		out.QUICSourceConnectionID = hex.EncodeToString(m.QUICSourceConnectionID)
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a sample from its wire schema.
func (s *PacketSample) UnmarshalJSON(data []byte) error {
	var in sampleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.Timestamp = in.Timestamp
	s.Direction = in.Direction
	s.FlowID = in.FlowID
	s.BurstID = in.BurstID
	s.BurstMetrics = in.BurstMetrics
	s.TrafficClassification = in.TrafficClassification

	m := PacketMetadata{
		Transport:         in.Transport,
		Length:            in.Length,
		DNSQueryName:      in.DNSQueryName,
		DNSCname:          in.DNSCname,
		RegistrableDomain: in.RegistrableDomain,
		TLSServerName:     in.TLSServerName,
		QUICVersion:       in.QUICVersion,
	}
	switch in.IPVersion {
	case 4:
		m.IPVersion = IPv4
	case 6:
		m.IPVersion = IPv6
	}
	if src := net.ParseIP(in.SrcAddress); src != nil {
		if a, ok := ipaddr.ParseNetIP(src); ok {
			m.SrcAddress = a
		}
	}
	if dst := net.ParseIP(in.DstAddress); dst != nil {
		if a, ok := ipaddr.ParseNetIP(dst); ok {
			m.DstAddress = a
		}
	}
	m.SrcPort = in.SrcPort
	m.DstPort = in.DstPort
	for _, raw := range in.DNSAnswerAddresses {
		if ip := net.ParseIP(raw); ip != nil {
			if a, ok := ipaddr.ParseNetIP(ip); ok {
				m.DNSAnswerAddresses = append(m.DNSAnswerAddresses, a)
			}
		}
	}
	switch in.QUICPacketType {
	case "initial":
		m.QUICPacketType = QUICInitial
	case "zeroRTT":
		m.QUICPacketType = QUICZeroRTT
	case "handshake":
		m.QUICPacketType = QUICHandshake
	case "retry":
		m.QUICPacketType = QUICRetry
	}
	if in.QUICDestinationConnectionID != "" {
		b, err := hex.DecodeString(in.QUICDestinationConnectionID)
		if err != nil {
			return fmt.Errorf("decode quicDestinationConnectionId: %w", err)
		}
		m.QUICDestinationConnectionID = b
	}
	if in.QUICSourceConnectionID != "" {
		b, err := hex.DecodeString(in.QUICSourceConnectionID)
		if err != nil {
			return fmt.Errorf("decode quicSourceConnectionId: %w", err)
		}
		m.QUICSourceConnectionID = b
	}
	s.Metadata = m
	return nil
}
