// Echoserver is a simple TCP upstream used for forwarder testing. It echoes
// every received byte back to the client. With -proxy-protocol it first
// consumes a PROXY protocol v2 header and logs the endpoints it carries.
//
// Usage:
//
//	go run ./scripts/echoserver -addr 127.0.0.1:8081
//	go run ./scripts/echoserver -addr 127.0.0.1:8081 -proxy-protocol
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/netip"
)

var signature = []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

func main() {
	addr := flag.String("addr", "127.0.0.1:8081", "listen address")
	proxyProtocol := flag.Bool("proxy-protocol", false, "expect a PROXY protocol v2 header")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen %s: %v", *addr, err)
	}
	log.Printf("echo server listening on %s (proxy-protocol=%v)", *addr, *proxyProtocol)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		go handle(conn, *proxyProtocol)
	}
}

func handle(conn net.Conn, proxyProtocol bool) {
	defer conn.Close()

	if proxyProtocol {
		src, dst, err := readHeader(conn)
		if err != nil {
			log.Printf("%s: bad proxy header: %v", conn.RemoteAddr(), err)
			return
		}
		log.Printf("%s: proxy header src=%s dst=%s", conn.RemoteAddr(), src, dst)
	}

	n, err := io.Copy(conn, conn)
	if err != nil {
		log.Printf("%s: echo ended with error after %d bytes: %v", conn.RemoteAddr(), n, err)
		return
	}
	log.Printf("%s: echoed %d bytes", conn.RemoteAddr(), n)
}

func readHeader(conn net.Conn) (src, dst string, err error) {
	fixed := make([]byte, 16)
	if _, err := io.ReadFull(conn, fixed); err != nil {
		return "", "", err
	}

	for i, b := range signature {
		if fixed[i] != b {
			return "", "", fmt.Errorf("signature mismatch at byte %d", i)
		}
	}

	length := binary.BigEndian.Uint16(fixed[14:16])
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return "", "", err
	}

	var addrLen int
	switch fixed[13] {
	case 0x11:
		addrLen = 4
	case 0x21:
		addrLen = 16
	case 0x00:
		return "unspecified", "unspecified", nil
	default:
		return "", "", fmt.Errorf("unknown family byte 0x%02x", fixed[13])
	}

	if int(length) != 2*addrLen+4 {
		return "", "", fmt.Errorf("length %d does not match family", length)
	}

	srcIP, _ := netip.AddrFromSlice(payload[:addrLen])
	dstIP, _ := netip.AddrFromSlice(payload[addrLen : 2*addrLen])
	srcPort := binary.BigEndian.Uint16(payload[2*addrLen:])
	dstPort := binary.BigEndian.Uint16(payload[2*addrLen+2:])

	return netip.AddrPortFrom(srcIP, srcPort).String(), netip.AddrPortFrom(dstIP, dstPort).String(), nil
}
