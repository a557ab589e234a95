// Package inject writes fully-formed IPv4 datagrams directly onto the
// wire. It is the external emitter the policy engine's replace_with
// verdicts rely on: a netfilter queue verdict can carry at most one
// packet back to the kernel, so every extra fragment, segment, or decoy
// the engine produces is sent through this raw socket instead.
package inject

import (
	"net"

	"golang.org/x/net/ipv4"
)

// Injector owns one raw IPv4 socket. It is safe for concurrent use by
// multiple queue workers; golang.org/x/net/ipv4.RawConn serializes writes
// internally.
type Injector struct {
	conn *ipv4.RawConn
}

// NewInjector opens a raw IPv4/TCP socket. The caller's process needs
// CAP_NET_RAW (or root), matching the privilege the netfilter queue
// ingress itself already requires.
func NewInjector() (*Injector, error) {
	packetConn, err := net.ListenPacket("ip4:tcp", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	rawConn, err := ipv4.NewRawConn(packetConn)
	if err != nil {
		packetConn.Close()
		return nil, err
	}
	return &Injector{conn: rawConn}, nil
}

// Send writes one fully-serialized IPv4 datagram, header included, built
// by pkg/ip, pkg/tcp, or pkg/fake.
func (inj *Injector) Send(datagram []byte) error {
	header, err := ipv4.ParseHeader(datagram)
	if err != nil {
		return err
	}
	return inj.conn.WriteTo(header, datagram[header.Len:], nil)
}

// Close releases the underlying socket.
func (inj *Injector) Close() error {
	return inj.conn.Close()
}
