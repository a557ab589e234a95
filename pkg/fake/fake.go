// Package fake synthesizes decoy TLS ClientHello packets used to
// desynchronize DPI middleboxes from the real TCP stream (C6).
package fake

import (
	"errors"

	"github.com/sniveil/sniveil/pkg/ip"
	"github.com/sniveil/sniveil/pkg/tcp"
	"github.com/sniveil/sniveil/pkg/tls"
)

// Strategy marks a decoy so DPI accepts it while the real destination
// rejects or discards it.
type Strategy int

const (
	// StrategyTTL expires the decoy's IP TTL before it reaches the server.
	StrategyTTL Strategy = iota
	// StrategyAckSeq sets the decoy's TCP seq/ack fields outside the
	// server's acceptance window.
	StrategyAckSeq
)

// ErrTooShort is returned when a decoy cannot be serialized.
var ErrTooShort = errors.New("fake: output buffer cannot hold decoy packet")

// DefaultClientHello is the compiled-in decoy TLS record: a syntactically
// valid ClientHello whose SNI is the non-sensitive placeholder
// "www.example.com". Its length and bytes are preserved verbatim in every
// emitted decoy; callers that supply a custom template must do the same.
var DefaultClientHello = buildDefaultClientHello()

func buildDefaultClientHello() []byte {
	sni := []byte("www.example.com")

	serverNameEntry := append([]byte{0x00}, u16(len(sni))...)
	serverNameEntry = append(serverNameEntry, sni...)
	serverNameList := append(u16(len(serverNameEntry)), serverNameEntry...)
	sniExt := append(u16(0x0000), u16(len(serverNameList))...)
	sniExt = append(sniExt, serverNameList...)

	extensions := sniExt

	body := make([]byte, 0, 64+len(extensions))
	body = append(body, byte(tls.VersionTLS12>>8), byte(tls.VersionTLS12&0xff))
	body = append(body, bytes32Zero()...) // client_random placeholder
	body = append(body, 0x00)             // session_id length
	cipherSuites := []byte{
		byte(tls.TLS_AES_128_GCM_SHA256 >> 8), byte(tls.TLS_AES_128_GCM_SHA256 & 0xff),
		byte(tls.TLS_CHACHA20_POLY1305_SHA256 >> 8), byte(tls.TLS_CHACHA20_POLY1305_SHA256 & 0xff),
	}
	body = append(body, u16(len(cipherSuites))...)
	body = append(body, cipherSuites...)
	body = append(body, 0x01, 0x00) // compression methods: length 1, null method
	body = append(body, u16(len(extensions))...)
	body = append(body, extensions...)

	handshake := append([]byte{0x01}, u24(len(body))...)
	handshake = append(handshake, body...)

	record := append([]byte{0x16, byte(tls.VersionTLS10 >> 8), byte(tls.VersionTLS10 & 0xff)}, u16(len(handshake))...)
	record = append(record, handshake...)

	return record
}

func u16(n int) []byte { return []byte{byte(n >> 8), byte(n)} }
func u24(n int) []byte { return []byte{byte(n >> 16), byte(n >> 8), byte(n)} }
func bytes32Zero() []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 0xDE
	}
	return b
}

// Synthesize clones the real packet's IP 5-tuple and TCP sequence space
// into a decoy carrying payload, then marks it per strategy so DPI accepts
// it but the server discards it.
func Synthesize(realIP *ip.Packet, realTCP *tcp.Segment, payload []byte, strategy Strategy, ttl uint8) (*ip.Packet, *tcp.Segment, error) {
	decoySeg := &tcp.Segment{
		SourcePort:      realTCP.SourcePort,
		DestinationPort: realTCP.DestinationPort,
		SequenceNumber:  realTCP.SequenceNumber,
		AckNumber:       realTCP.AckNumber,
		DataOffset:      5,
		Flags:           tcp.FlagPSH | tcp.FlagACK,
		WindowSize:      realTCP.WindowSize,
		Data:            payload,
	}

	switch strategy {
	case StrategyAckSeq:
		// Push the decoy's sequence space far outside the real flow's
		// window so the server silently drops it.
		decoySeg.SequenceNumber = realTCP.SequenceNumber - uint32(len(payload)) - 1_000_000
		decoySeg.AckNumber = realTCP.AckNumber + 1_000_000
	}

	checksum, err := decoySeg.CalculateChecksum(realIP.Source, realIP.Destination)
	if err != nil {
		return nil, nil, ErrTooShort
	}
	decoySeg.Checksum = checksum

	tcpBytes, err := decoySeg.Serialize()
	if err != nil {
		return nil, nil, ErrTooShort
	}

	decoyIP := ip.NewPacket(realIP.Source, realIP.Destination, realIP.Protocol, tcpBytes)
	decoyIP.Identification = realIP.Identification
	if strategy == StrategyTTL {
		decoyIP.TTL = ttl
	} else {
		decoyIP.TTL = realIP.TTL
	}

	if _, err := decoyIP.Serialize(); err != nil {
		return nil, nil, ErrTooShort
	}

	return decoyIP, decoySeg, nil
}

// RewriteWindow rewrites the real (non-decoy) segment's advertised window
// to winSize and, when the segment carries no Window Scale option, appends
// one carrying wscale (an existing option is kept as is), then recomputes
// its checksum. Used when fk_winsize > 0 to encourage the
// peer to send smaller follow-up segments, aiding fragmentation.
func RewriteWindow(realIP *ip.Packet, realTCP *tcp.Segment, winSize uint16, wscale uint8) (*ip.Packet, *tcp.Segment, error) {
	seg := &tcp.Segment{
		SourcePort:      realTCP.SourcePort,
		DestinationPort: realTCP.DestinationPort,
		SequenceNumber:  realTCP.SequenceNumber,
		AckNumber:       realTCP.AckNumber,
		Flags:           realTCP.Flags,
		WindowSize:      winSize,
		UrgentPointer:   realTCP.UrgentPointer,
		Options:         append([]byte(nil), realTCP.Options...),
		Data:            realTCP.Data,
	}
	if _, err := seg.GetWindowScale(); err != nil {
		seg.Options = append(seg.Options, tcp.BuildWindowScaleOption(wscale)...)
	}

	checksum, err := seg.CalculateChecksum(realIP.Source, realIP.Destination)
	if err != nil {
		return nil, nil, ErrTooShort
	}
	seg.Checksum = checksum

	tcpBytes, err := seg.Serialize()
	if err != nil {
		return nil, nil, ErrTooShort
	}

	out := ip.NewPacket(realIP.Source, realIP.Destination, realIP.Protocol, tcpBytes)
	out.Identification = realIP.Identification
	out.TTL = realIP.TTL
	if _, err := out.Serialize(); err != nil {
		return nil, nil, ErrTooShort
	}

	return out, seg, nil
}
