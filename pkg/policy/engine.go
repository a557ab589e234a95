// Package policy implements the stateless packet-mangling dispatch (C7):
// parse, locate the ClientHello SNI, and — for packets that match the
// configured domain set — fragment, fake, or rewrite them to desynchronize
// SNI-based DPI.
package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/sniveil/sniveil/pkg/common"
	"github.com/sniveil/sniveil/pkg/fake"
	"github.com/sniveil/sniveil/pkg/ip"
	"github.com/sniveil/sniveil/pkg/quic"
	"github.com/sniveil/sniveil/pkg/sni"
	"github.com/sniveil/sniveil/pkg/tcp"
	"github.com/sniveil/sniveil/pkg/udp"
)

const quicDropPort = 443

// Engine dispatches one raw IPv4 datagram to a Verdict. It holds no
// mutable state of its own: every call to Handle is independent of every
// other, so a single Engine may be shared by any number of concurrent
// worker goroutines, one per netfilter queue.
type Engine struct {
	Config  *Config
	Locator sni.ClientHelloLocator
	Log     *logrus.Entry
}

// NewEngine builds an Engine bound to cfg, always installing
// sni.DefaultLocator; a caller may assign another ClientHelloLocator to the
// returned Engine's Locator field. log may be nil; a nil entry disables
// all of the engine's diagnostics.
func NewEngine(cfg *Config, log *logrus.Entry) *Engine {
	return &Engine{
		Config:  cfg,
		Locator: sni.DefaultLocator{},
		Log:     log,
	}
}

func (e *Engine) trace(format string, args ...interface{}) {
	if e.Log != nil {
		e.Log.Tracef(format, args...)
	}
}

// Handle implements the 8-step dispatch algorithm. It never returns a
// non-nil error for malformed or too-short input: those fail open to
// AcceptUnchanged, matching the fail-open error kinds MALFORMED/TOO_SHORT/
// INVALID_OFFSET/INVALID_FRAG_STATE. The only error this can return is a
// defensive zero value; callers should treat a non-nil error the same as
// AcceptUnchanged.
func (e *Engine) Handle(buf []byte) (Verdict, error) {
	ipPkt, err := ip.Parse(buf)
	if err != nil {
		e.trace("accept_unchanged: %s", Malformed)
		return acceptUnchanged(), nil
	}

	if ipPkt.Protocol == common.ProtocolUDP {
		udpPkt, err := udp.Parse(ipPkt.Payload)
		if err == nil && e.Config.QuicDrop && udpPkt.DestinationPort == quicDropPort {
			e.trace("drop: quic_drop matched UDP/%d (quic-like=%v)", quicDropPort, quic.IsLikelyQUIC(udpPkt.Data))
			return drop(), nil
		}
		return acceptUnchanged(), nil
	}

	if ipPkt.Protocol != common.ProtocolTCP {
		return acceptUnchanged(), nil
	}

	tcpSeg, err := tcp.Parse(ipPkt.Payload)
	if err != nil || len(tcpSeg.Data) == 0 {
		return acceptUnchanged(), nil
	}

	result := e.Locator.Locate(tcpSeg.Data)
	if result.Kind != sni.Found {
		return acceptUnchanged(), nil
	}

	if !e.Config.Domains.IsAll() && !e.Config.Domains.Matches(result.Name) {
		e.trace("accept_unchanged: %q not in domain set", result.Name)
		return acceptUnchanged(), nil
	}

	return e.buildOutput(ipPkt, tcpSeg, result)
}

func roundDownTo8(n int) int { return (n / 8) * 8 }

func (e *Engine) wscale(seg *tcp.Segment) uint8 {
	if shift, err := seg.GetWindowScale(); err == nil {
		return shift
	}
	return 0
}

func (e *Engine) decoy(realIP *ip.Packet, realTCP *tcp.Segment) (*ip.Packet, bool) {
	decoyIP, _, err := fake.Synthesize(realIP, realTCP, e.Config.ClientHelloTemplate, e.Config.FakingStrategy, e.Config.FakingTTL)
	if err != nil {
		return nil, false
	}
	return decoyIP, true
}

// buildOutput implements spec step 7: assemble the ordered output list and
// per-packet delays, then step 8: return replace_with(output, delays).
func (e *Engine) buildOutput(ipPkt *ip.Packet, tcpSeg *tcp.Segment, result sni.Result) (Verdict, error) {
	var packets [][]byte
	var delays []int

	appendIP := func(p *ip.Packet, delay int) bool {
		b, err := p.Serialize()
		if err != nil {
			return false
		}
		packets = append(packets, b)
		delays = append(delays, delay)
		return true
	}

	// 7a: prepend fake_sni_seq_len decoys.
	if e.Config.FakeSNI {
		for i := uint16(0); i < uint16(e.Config.FakeSNISeqLen); i++ {
			decoyIP, ok := e.decoy(ipPkt, tcpSeg)
			if !ok || !appendIP(decoyIP, 0) {
				return acceptUnchanged(), nil
			}
		}
	}

	// 7b: no fragmentation — append the (possibly window-rewritten)
	// original and stop.
	if e.Config.FragmentationStrategy == FragmentationNone {
		outIP := ipPkt
		if e.Config.FkWinsize > 0 {
			var err error
			outIP, _, err = fake.RewriteWindow(ipPkt, tcpSeg, e.Config.FkWinsize, e.wscale(tcpSeg))
			if err != nil {
				return acceptUnchanged(), nil
			}
		}
		if !appendIP(outIP, 0) {
			return acceptUnchanged(), nil
		}
		return replaceWith(packets, delays), nil
	}

	// 7c/7d: fragment at the SNI boundary.
	var fragments [2]*ip.Packet
	switch e.Config.FragmentationStrategy {
	case FragmentationTCP:
		ipA, ipB, _, _, err := tcp.FragTCPv4(ipPkt, tcpSeg, result.Offset)
		if err != nil {
			if e.Log != nil {
				e.Log.Warnf("accept_unchanged: tcp segmenter rejected offset %d: %v", result.Offset, err)
			}
			return acceptUnchanged(), nil
		}
		fragments = [2]*ip.Packet{ipA, ipB}
	case FragmentationIP:
		splitOffset := roundDownTo8(result.Offset)
		if splitOffset <= 0 {
			splitOffset = 8
		}
		fragA, fragB, err := ip.FragIPv4(ipPkt, splitOffset)
		if err != nil {
			if e.Log != nil {
				e.Log.Warnf("accept_unchanged: ip fragmenter rejected offset %d: %v", splitOffset, err)
			}
			return acceptUnchanged(), nil
		}
		fragments = [2]*ip.Packet{fragA, fragB}
	}

	// 7e: reverse fragment order.
	if e.Config.FragSNIReverse {
		fragments[0], fragments[1] = fragments[1], fragments[0]
	}

	// 7f/7g: wrap each fragment in decoys and attach the second fragment's delay.
	for i, frag := range fragments {
		if e.Config.FragSNIFaked {
			if decoyIP, ok := e.decoy(ipPkt, tcpSeg); ok {
				appendIP(decoyIP, 0)
			}
		}

		delay := 0
		if i == 1 {
			delay = e.Config.Seg2DelayMs
		}
		if !appendIP(frag, delay) {
			return acceptUnchanged(), nil
		}

		if e.Config.FragSNIFaked {
			if decoyIP, ok := e.decoy(ipPkt, tcpSeg); ok {
				appendIP(decoyIP, 0)
			}
		}
	}

	return replaceWith(packets, delays), nil
}
