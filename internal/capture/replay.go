// Package capture replays a previously-recorded .pcap/.pcapng capture
// file through the analytics core, standing in for the live tunnel
// provider the core is normally embedded in. It decodes only as far as
// necessary to recover the IP-layer bytes the parser expects — all
// protocol interpretation beyond that point belongs to
// internal/parser, not here.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// RawPacket is one decoded-to-IP-layer frame recovered from a capture
// file, ready to hand to core.Core.OnPacket.
type RawPacket struct {
	IPBytes   []byte
	Timestamp float64 // seconds since epoch, fractional
	Direction model.Direction
}

// Replay opens a pcap or pcapng file (format is auto-detected from the
// file's magic number, matching pcapgo's own sniffing) and calls fn
// once per packet containing an Ethernet/IP frame, in file order.
// Non-IP link-layer frames (ARP, etc.) are skipped; every tunnel
// direction is reported as outbound, since a flat capture file carries
// no tunnel-relative direction of its own — a real tunnel provider
// supplies this from its own inbound/outbound socket bookkeeping.
func Replay(path string, fn func(RawPacket) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("capture: opening %s: %w", path, err)
	}
	defer f.Close()

	reader, linkType, err := openReader(f)
	if err != nil {
		return fmt.Errorf("capture: reading %s: %w", path, err)
	}

	for {
		data, ci, err := reader.ZeroCopyReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("capture: reading packet: %w", err)
		}

		ipBytes, ok := extractIPLayer(data, linkType)
		if !ok {
			continue
		}

		raw := RawPacket{
			IPBytes:   append([]byte(nil), ipBytes...),
			Timestamp: float64(ci.Timestamp.UnixNano()) / 1e9,
			Direction: model.Outbound,
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}

// packetDataReader is the subset of pcapgo's two reader types (Reader
// for classic pcap, NgReader for pcapng) that Replay needs.
type packetDataReader interface {
	ZeroCopyReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

func openReader(f *os.File) (packetDataReader, layers.LinkType, error) {
	if ng, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions); err == nil {
		return ng, ng.LinkType(), nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("unrecognized capture format: %w", err)
	}
	return r, r.LinkType(), nil
}

// extractIPLayer decodes only enough of the link layer to locate the
// start of the IPv4/IPv6 header, handing the parser raw bytes from
// there on — it never interprets TCP/UDP/DNS/TLS/QUIC itself.
func extractIPLayer(data []byte, linkType layers.LinkType) ([]byte, bool) {
	packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if layer := packet.Layer(layers.LayerTypeIPv4); layer != nil {
		return append(layer.LayerContents(), layer.LayerPayload()...), true
	}
	if layer := packet.Layer(layers.LayerTypeIPv6); layer != nil {
		return append(layer.LayerContents(), layer.LayerPayload()...), true
	}
	return nil, false
}
