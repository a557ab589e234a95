package sni

import "encoding/binary"

// ResultKind distinguishes the possible outcomes of locating an SNI value
// inside a TCP payload.
type ResultKind int

const (
	// NotTLS means the payload does not begin with a TLS record header.
	NotTLS ResultKind = iota
	// NotClientHello means the TLS record is not a ClientHello handshake message.
	NotClientHello
	// NoSNI means a ClientHello was found but it carries no server_name extension.
	NoSNI
	// Found means a server_name value was located.
	Found
)

// Result is the outcome of ClientHelloLocator.Locate. Name, Offset, and
// Length are only meaningful when Kind is Found; Offset and Length are
// byte positions within the TCP payload passed to Locate.
type Result struct {
	Kind   ResultKind
	Name   string
	Offset int
	Length int
}

// ClientHelloLocator finds the SNI byte range inside a TCP payload. It is
// deterministic, read-only, and allocates nothing beyond the matched
// hostname string.
type ClientHelloLocator interface {
	Locate(payload []byte) Result
}

// Record, handshake-message, extension and server-name types this locator
// recognizes.
const (
	tlsContentTypeHandshake  = 0x16
	tlsHandshakeClientHello  = 0x01
	tlsExtensionServerName   = 0x0000
	tlsServerNameTypeHostname = 0x00
)

// DefaultLocator implements ClientHelloLocator by walking a single TLS
// record containing (or starting) a ClientHello handshake message.
type DefaultLocator struct{}

// Locate implements ClientHelloLocator.
func (DefaultLocator) Locate(payload []byte) Result {
	// TLS record header: type(1) version(2) length(2).
	if len(payload) < 5 || payload[0] != tlsContentTypeHandshake {
		return Result{Kind: NotTLS}
	}
	recordLen := int(binary.BigEndian.Uint16(payload[3:5]))
	if recordLen < 4 || 5+recordLen > len(payload) {
		return Result{Kind: NotTLS}
	}

	body := payload[5 : 5+recordLen]

	// Handshake header: msg_type(1) length(3).
	if len(body) < 4 || body[0] != tlsHandshakeClientHello {
		return Result{Kind: NotClientHello}
	}
	msgLen := int(body[1])<<16 | int(body[2])<<8 | int(body[3])
	if 4+msgLen > len(body) {
		return Result{Kind: NotClientHello}
	}
	hello := body[4 : 4+msgLen]

	off := 0
	// client_version(2) + random(32)
	if len(hello) < off+34 {
		return Result{Kind: NotClientHello}
	}
	off += 34

	// session_id
	if len(hello) < off+1 {
		return Result{Kind: NotClientHello}
	}
	sessionIDLen := int(hello[off])
	off++
	if len(hello) < off+sessionIDLen {
		return Result{Kind: NotClientHello}
	}
	off += sessionIDLen

	// cipher_suites
	if len(hello) < off+2 {
		return Result{Kind: NotClientHello}
	}
	cipherLen := int(binary.BigEndian.Uint16(hello[off : off+2]))
	off += 2
	if len(hello) < off+cipherLen {
		return Result{Kind: NotClientHello}
	}
	off += cipherLen

	// compression_methods
	if len(hello) < off+1 {
		return Result{Kind: NotClientHello}
	}
	compLen := int(hello[off])
	off++
	if len(hello) < off+compLen {
		return Result{Kind: NotClientHello}
	}
	off += compLen

	// extensions
	if len(hello) < off+2 {
		return Result{Kind: NoSNI}
	}
	extTotalLen := int(binary.BigEndian.Uint16(hello[off : off+2]))
	off += 2
	if len(hello) < off+extTotalLen {
		return Result{Kind: NoSNI}
	}
	extensions := hello[off : off+extTotalLen]
	extBase := 5 + 4 + off // absolute offset of extensions within the payload

	eoff := 0
	for eoff+4 <= len(extensions) {
		extType := binary.BigEndian.Uint16(extensions[eoff : eoff+2])
		extLen := int(binary.BigEndian.Uint16(extensions[eoff+2 : eoff+4]))
		eoff += 4
		if eoff+extLen > len(extensions) {
			return Result{Kind: NoSNI}
		}

		if extType == tlsExtensionServerName {
			name, nameOff, nameLen, ok := parseServerNameExtension(extensions[eoff : eoff+extLen])
			if !ok {
				return Result{Kind: NoSNI}
			}
			return Result{
				Kind:   Found,
				Name:   name,
				Offset: extBase + eoff + nameOff,
				Length: nameLen,
			}
		}

		eoff += extLen
	}

	return Result{Kind: NoSNI}
}

// parseServerNameExtension reads the server_name_list structure and
// returns the first host_name entry's value, its offset within ext, and
// its length.
func parseServerNameExtension(ext []byte) (name string, offset, length int, ok bool) {
	if len(ext) < 2 {
		return "", 0, 0, false
	}
	listLen := int(binary.BigEndian.Uint16(ext[0:2]))
	if 2+listLen > len(ext) {
		return "", 0, 0, false
	}
	list := ext[2 : 2+listLen]

	off := 0
	for off+3 <= len(list) {
		nameType := list[off]
		nameLen := int(binary.BigEndian.Uint16(list[off+1 : off+3]))
		off += 3
		if off+nameLen > len(list) {
			return "", 0, 0, false
		}
		if nameType == tlsServerNameTypeHostname {
			return string(list[off : off+nameLen]), 2 + off, nameLen, true
		}
		off += nameLen
	}

	return "", 0, 0, false
}
