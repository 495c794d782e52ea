package proxyproto

import (
	"encoding/binary"
	"net/netip"
)

// signature is the fixed 12-byte PROXY protocol v2 preamble.
var signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	// versionCommand is version 2 with the PROXY command.
	versionCommand = 0x21

	familyTCPv4       = 0x11
	familyTCPv6       = 0x21
	familyUnspecified = 0x00

	addrLenV4 = 12
	addrLenV6 = 36
)

// Header builds a PROXY protocol v2 header identifying the original client
// (src) and destination (dst) endpoints. When the two addresses belong to
// different families the header degrades to the zero-length unspecified
// form instead of failing; a downstream peer then sees an anonymous
// connection. 4-in-6 mapped addresses count as IPv4.
func Header(src, dst netip.AddrPort) []byte {
	srcAddr := src.Addr().Unmap()
	dstAddr := dst.Addr().Unmap()

	buf := make([]byte, 0, 16+addrLenV6)
	buf = append(buf, signature[:]...)
	buf = append(buf, versionCommand)

	switch {
	case srcAddr.Is4() && dstAddr.Is4():
		buf = append(buf, familyTCPv4)
		buf = binary.BigEndian.AppendUint16(buf, addrLenV4)

		s4 := srcAddr.As4()
		d4 := dstAddr.As4()
		buf = append(buf, s4[:]...)
		buf = append(buf, d4[:]...)

	case srcAddr.Is6() && dstAddr.Is6():
		buf = append(buf, familyTCPv6)
		buf = binary.BigEndian.AppendUint16(buf, addrLenV6)

		s16 := srcAddr.As16()
		d16 := dstAddr.As16()
		buf = append(buf, s16[:]...)
		buf = append(buf, d16[:]...)

	default:
		buf = append(buf, familyUnspecified)
		buf = binary.BigEndian.AppendUint16(buf, 0)
		return buf
	}

	buf = binary.BigEndian.AppendUint16(buf, src.Port())
	buf = binary.BigEndian.AppendUint16(buf, dst.Port())
	return buf
}
