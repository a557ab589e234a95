package ip

import (
	"errors"
)

// Errors returned by FragIPv4; pkg/policy logs either one and accepts the
// original packet unchanged.
var (
	ErrInvalidOffset = errors.New("ip: payload_offset is not a positive multiple of 8 within bounds")
	ErrTooShort      = errors.New("ip: output buffer cannot hold fragment")
)

// FragIPv4 implements the frag_ip4 contract (C3): given one unfragmented
// IPv4 datagram and a caller-chosen offset into its payload, produce two
// valid IPv4 fragments. It never reassembles and never holds state across
// calls — this is a pure function, matching the explicit non-goal against
// inbound reassembly.
//
// payload_offset must be a positive multiple of 8 and strictly less than
// the input's payload length. fragment_a carries [0, payload_offset) with
// MF set and its own frag_off cleared to the original offset; fragment_b
// carries [payload_offset, end) with frag_off advanced by
// payload_offset/8 and MF preserved from the input. DF and Reserved are
// cleared on both fragments: a fragment that still claims "don't fragment
// me" while itself being a fragment is self-contradictory, and some
// stacks drop it on sight.
//
// IP checksums are recomputed on both fragments; the L4 checksum is left
// untouched, since per RFC 791 a fragment's L4 header is meaningless until
// reassembly at the destination.
func FragIPv4(input *Packet, payloadOffset int) (fragA, fragB *Packet, err error) {
	if payloadOffset <= 0 || payloadOffset%8 != 0 {
		return nil, nil, ErrInvalidOffset
	}
	if payloadOffset >= len(input.Payload) {
		return nil, nil, ErrInvalidOffset
	}

	a := cloneHeader(input)
	b := cloneHeader(input)

	a.Payload = input.Payload[:payloadOffset]
	b.Payload = input.Payload[payloadOffset:]

	origOffset := input.FragmentOffset
	origMF := input.Flags & FlagMoreFragments

	a.FragmentOffset = origOffset
	a.Flags = FlagMoreFragments

	b.FragmentOffset = origOffset + uint16(payloadOffset/8)
	b.Flags = origMF

	if _, err := a.Serialize(); err != nil {
		return nil, nil, ErrTooShort
	}
	if _, err := b.Serialize(); err != nil {
		return nil, nil, ErrTooShort
	}

	return a, b, nil
}

// cloneHeader copies every IP header field except the payload, so each
// fragment starts from an identical copy of the original header before
// FragIPv4 overwrites the fields it owns.
func cloneHeader(p *Packet) *Packet {
	clone := *p
	clone.Options = append([]byte(nil), p.Options...)
	clone.Payload = nil
	return &clone
}
