package common

import "encoding/binary"

// CalculateChecksum computes the Internet checksum as defined in RFC 1071.
// The Internet checksum is a 16-bit one's complement of the one's complement sum
// of all 16-bit words in the data. If the data length is odd, the last byte is
// padded with a zero byte.
//
// This checksum is used in IP, ICMP, UDP, and TCP headers.
func CalculateChecksum(data []byte) uint16 {
	// Sum all 16-bit words
	var sum uint32
	length := len(data)

	// Process 16-bit words
	for i := 0; i < length-1; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}

	// If length is odd, add the last byte (padded with zero)
	if length%2 == 1 {
		sum += uint32(data[length-1]) << 8
	}

	// Fold 32-bit sum to 16 bits
	// Add carry bits (high 16 bits) back to low 16 bits
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	// Return one's complement
	return ^uint16(sum)
}

// VerifyChecksum verifies that the checksum of the data is correct.
// When calculating the checksum over data that includes the checksum field,
// the result should be 0 (or 0xFFFF, which is equivalent in one's complement).
func VerifyChecksum(data []byte) bool {
	checksum := CalculateChecksum(data)
	return checksum == 0 || checksum == 0xFFFF
}

// PseudoHeader represents the pseudo-header used for TCP and UDP checksum calculation.
// As per RFC 793 (TCP) and RFC 768 (UDP), the checksum includes a pseudo-header
// containing the source address, destination address, protocol, and length.
type PseudoHeader struct {
	SourceAddr      IPv4Address
	DestinationAddr IPv4Address
	Protocol        Protocol
	Length          uint16
}

// Bytes serializes the pseudo-header to bytes for checksum calculation.
func (ph PseudoHeader) Bytes() []byte {
	b := make([]byte, 12)
	copy(b[0:4], ph.SourceAddr[:])
	copy(b[4:8], ph.DestinationAddr[:])
	b[8] = 0 // Zero byte
	b[9] = uint8(ph.Protocol)
	binary.BigEndian.PutUint16(b[10:12], ph.Length)
	return b
}

// IPChecksum implements the ip_checksum(ip_header_bytes) contract: it zeroes
// the checksum field (offset 10, 2 bytes), sums the header, and writes the
// result back in place. ipHeader must be at least 12 bytes (it always is —
// a minimum IPv4 header is 20 bytes).
func IPChecksum(ipHeader []byte) uint16 {
	ipHeader[10] = 0
	ipHeader[11] = 0
	sum := CalculateChecksum(ipHeader)
	binary.BigEndian.PutUint16(ipHeader[10:12], sum)
	return sum
}

// TCPChecksum implements the tcp_checksum(ip_header_bytes, tcp_header_bytes,
// payload_bytes) contract: one's-complement sum over the TCP pseudo-header,
// the TCP header with its checksum field (offset 16) zeroed, and the
// payload. The result is written back into the TCP header's checksum field.
func TCPChecksum(src, dst IPv4Address, tcpHeader, payload []byte) uint16 {
	tcpHeader[16] = 0
	tcpHeader[17] = 0

	ph := PseudoHeader{
		SourceAddr:      src,
		DestinationAddr: dst,
		Protocol:        ProtocolTCP,
		Length:          uint16(len(tcpHeader) + len(payload)),
	}

	combined := make([]byte, 0, 12+len(tcpHeader)+len(payload))
	combined = append(combined, ph.Bytes()...)
	combined = append(combined, tcpHeader...)
	combined = append(combined, payload...)

	sum := CalculateChecksum(combined)
	binary.BigEndian.PutUint16(tcpHeader[16:18], sum)
	return sum
}

// UDPChecksum implements the UDP analogue of TCPChecksum. Per RFC 768, a
// computed checksum of exactly zero is transmitted as 0xFFFF; a checksum
// field left at zero on the wire means "checksum not computed."
func UDPChecksum(src, dst IPv4Address, udpHeader, payload []byte) uint16 {
	udpHeader[6] = 0
	udpHeader[7] = 0

	ph := PseudoHeader{
		SourceAddr:      src,
		DestinationAddr: dst,
		Protocol:        ProtocolUDP,
		Length:          uint16(len(udpHeader) + len(payload)),
	}

	combined := make([]byte, 0, 12+len(udpHeader)+len(payload))
	combined = append(combined, ph.Bytes()...)
	combined = append(combined, udpHeader...)
	combined = append(combined, payload...)

	sum := CalculateChecksum(combined)
	if sum == 0 {
		sum = 0xFFFF
	}
	binary.BigEndian.PutUint16(udpHeader[6:8], sum)
	return sum
}
