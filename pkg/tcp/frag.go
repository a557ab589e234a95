package tcp

import (
	"errors"

	"github.com/sniveil/sniveil/pkg/ip"
)

// Errors returned by FragTCPv4.
var (
	ErrInvalidOffset    = errors.New("tcp: payload_offset must satisfy 0 < payload_offset < payload length")
	ErrInvalidFragState = errors.New("tcp: input IP header already indicates fragmentation")
	ErrTooShort         = errors.New("tcp: output buffer cannot hold segment")
)

// FragTCPv4 implements the frag_tcp4 contract (C4): given one IPv4
// datagram carrying an unfragmented TCP segment, split the TCP payload
// at payload_offset into two IPv4/TCP segments that each carry their
// own copy of the IP and TCP headers.
//
// It rejects input whose IP header already carries MF or a nonzero
// fragment offset with ErrInvalidFragState, matching the reference
// behavior of never layering TCP segmentation on top of IP
// fragmentation. segment_b's sequence number is advanced by
// payload_offset; both segments keep the input's flags unmodified.
// Both IP and TCP checksums are recomputed on both segments.
func FragTCPv4(input *ip.Packet, tcpSeg *Segment, payloadOffset int) (segA, segB *ip.Packet, tcpA, tcpB *Segment, err error) {
	if input.IsFragment() {
		return nil, nil, nil, nil, ErrInvalidFragState
	}

	if payloadOffset <= 0 || payloadOffset >= len(tcpSeg.Data) {
		return nil, nil, nil, nil, ErrInvalidOffset
	}

	a := cloneTCP(tcpSeg)
	b := cloneTCP(tcpSeg)

	a.Data = tcpSeg.Data[:payloadOffset]
	b.Data = tcpSeg.Data[payloadOffset:]
	b.SequenceNumber = tcpSeg.SequenceNumber + uint32(payloadOffset)

	a.Checksum = 0
	b.Checksum = 0
	if a.Checksum, err = a.CalculateChecksum(input.Source, input.Destination); err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}
	if b.Checksum, err = b.CalculateChecksum(input.Source, input.Destination); err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}

	aBytes, err := a.Serialize()
	if err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}
	bBytes, err := b.Serialize()
	if err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}

	ipA := cloneIPHeader(input)
	ipB := cloneIPHeader(input)
	ipA.Payload = aBytes
	ipB.Payload = bBytes

	if _, err := ipA.Serialize(); err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}
	if _, err := ipB.Serialize(); err != nil {
		return nil, nil, nil, nil, ErrTooShort
	}

	return ipA, ipB, a, b, nil
}

func cloneTCP(s *Segment) *Segment {
	clone := *s
	clone.Options = append([]byte(nil), s.Options...)
	clone.Data = nil
	return &clone
}

func cloneIPHeader(p *ip.Packet) *ip.Packet {
	clone := *p
	clone.Options = append([]byte(nil), p.Options...)
	clone.Payload = nil
	return &clone
}
