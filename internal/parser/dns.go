package parser

import (
	"encoding/binary"
	"strings"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
	"github.com/kleaSCM/tunnelscope/internal/model"
)

const (
	dnsTypeA     = 1
	dnsTypeCNAME = 5
	dnsTypeAAAA  = 28

	maxLabelJumps = 64 // caps compression-pointer cycles
)

// parseDNS decodes a DNS message into the packet's DNS annotations.
// Malformed messages leave the fields they couldn't decode absent
// without aborting the whole packet.
func parseDNS(meta *model.PacketMetadata, msg []byte) {
	if len(msg) < 12 {
		return
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	qr := flags&0x8000 != 0
	qdCount := binary.BigEndian.Uint16(msg[4:6])
	anCount := binary.BigEndian.Uint16(msg[6:8])

	offset := 12
	if qdCount == 0 {
		return
	}
	name, next, ok := decodeName(msg, offset)
	if !ok {
		return
	}
	offset = next
	if offset+4 > len(msg) {
		return
	}
	offset += 4 // qtype + qclass

	meta.DNSQueryName = name
	meta.RegistrableDomain = registrableDomain(name)

	if !qr {
		return
	}

	for i := 0; i < int(anCount); i++ {
		var ok bool
		_, offset, ok = decodeName(msg, offset)
		if !ok || offset+10 > len(msg) {
			return
		}
		rrType := binary.BigEndian.Uint16(msg[offset : offset+2])
		rdLength := int(binary.BigEndian.Uint16(msg[offset+8 : offset+10]))
		rdataStart := offset + 10
		if rdataStart+rdLength > len(msg) {
			return
		}
		rdata := msg[rdataStart : rdataStart+rdLength]

		switch rrType {
		case dnsTypeA:
			if len(rdata) == 4 {
				if ip, ok := ipaddr.FromBytes(rdata); ok {
					meta.DNSAnswerAddresses = append(meta.DNSAnswerAddresses, ip)
				}
			}
		case dnsTypeAAAA:
			if len(rdata) == 16 {
				if ip, ok := ipaddr.FromBytes(rdata); ok {
					meta.DNSAnswerAddresses = append(meta.DNSAnswerAddresses, ip)
				}
			}
		case dnsTypeCNAME:
			if meta.DNSCname == "" {
				if target, _, ok := decodeName(msg, rdataStart); ok {
					meta.DNSCname = target
				}
			}
		}
		offset = rdataStart + rdLength
	}
}

// decodeName reads a DNS name starting at off, following compression
// pointers with a bounded jump count to guard against cycles. Returns
// the dotted name, the offset immediately after the name as it
// appears in-line (not after a followed pointer), and ok.
func decodeName(msg []byte, off int) (string, int, bool) {
	var labels []string
	jumps := 0
	originalNext := -1
	cur := off

	for {
		if cur >= len(msg) {
			return "", 0, false
		}
		length := int(msg[cur])
		if length == 0 {
			cur++
			if originalNext == -1 {
				originalNext = cur
			}
			break
		}
		if length&0xc0 == 0xc0 {
			if cur+1 >= len(msg) {
				return "", 0, false
			}
			if originalNext == -1 {
				originalNext = cur + 2
			}
			jumps++
			if jumps > maxLabelJumps {
				return "", 0, false
			}
			pointer := int(length&0x3f)<<8 | int(msg[cur+1])
			if pointer >= cur {
				return "", 0, false // must point strictly backward
			}
			cur = pointer
			continue
		}
		if length&0xc0 != 0 {
			return "", 0, false
		}
		start := cur + 1
		end := start + length
		if end > len(msg) {
			return "", 0, false
		}
		labels = append(labels, string(msg[start:end]))
		cur = end
	}

	return strings.Join(labels, "."), originalNext, true
}

// registrableDomain is the documented two-label heuristic: the last
// two dot-separated labels of name. This is not a real public-suffix
// lookup; see DESIGN.md for the tradeoff.
func registrableDomain(name string) string {
	labels := strings.Split(strings.Trim(name, "."), ".")
	if len(labels) < 2 {
		return name
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
