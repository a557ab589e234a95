// Package common provides shared types and byte-level primitives used by
// the IPv4/TCP/UDP packet-mangling pipeline.
package common

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPv4Address represents a 32-bit IPv4 address.
type IPv4Address [4]byte

// String returns the IP address in dotted decimal format (e.g., "192.168.1.1").
func (ip IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// ToUint32 converts the IPv4 address to a uint32 in network byte order.
func (ip IPv4Address) ToUint32() uint32 {
	return binary.BigEndian.Uint32(ip[:])
}

// ParseIPv4 parses a string IPv4 address (e.g., "192.168.1.1").
func ParseIPv4(s string) (IPv4Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPv4Address{}, fmt.Errorf("invalid IP address: %s", s)
	}
	ip = ip.To4()
	if ip == nil {
		return IPv4Address{}, fmt.Errorf("not an IPv4 address: %s", s)
	}
	var addr IPv4Address
	copy(addr[:], ip)
	return addr, nil
}

// IPv4FromUint32 converts a uint32 to an IPv4 address.
func IPv4FromUint32(v uint32) IPv4Address {
	var addr IPv4Address
	binary.BigEndian.PutUint32(addr[:], v)
	return addr
}

// Protocol represents the protocol number in an IP header.
type Protocol uint8

// Protocol numbers relevant to the mangler; ICMP is retained only for
// String() completeness, the engine never dispatches on it.
const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// String returns a human-readable name for the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolICMP:
		return "ICMP"
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}
