package ip

import (
	"bytes"
	"testing"

	"github.com/sniveil/sniveil/pkg/common"
)

func makeTCPCarryingPacket(t *testing.T, payloadLen int) *Packet {
	t.Helper()
	srcIP, _ := common.ParseIPv4("192.168.1.100")
	dstIP, _ := common.ParseIPv4("93.184.216.34")

	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	pkt := NewPacket(srcIP, dstIP, common.ProtocolTCP, payload)
	pkt.Identification = 0xBEEF
	return pkt
}

func TestFragIPv4_SplitMergeRoundtrip(t *testing.T) {
	for _, k := range []int{8, 40, 800} {
		pkt := makeTCPCarryingPacket(t, 1000)
		a, b, err := FragIPv4(pkt, k)
		if err != nil {
			t.Fatalf("FragIPv4(%d) error = %v", k, err)
		}

		merged := append(append([]byte(nil), a.Payload...), b.Payload...)
		if !bytes.Equal(merged, pkt.Payload) {
			t.Errorf("offset %d: merged payload mismatch", k)
		}

		aBytes, err := a.Serialize()
		if err != nil {
			t.Fatalf("fragment_a.Serialize() error = %v", err)
		}
		if _, err := Parse(aBytes); err != nil {
			t.Errorf("fragment_a does not re-parse: %v", err)
		}

		bBytes, err := b.Serialize()
		if err != nil {
			t.Fatalf("fragment_b.Serialize() error = %v", err)
		}
		if _, err := Parse(bBytes); err != nil {
			t.Errorf("fragment_b does not re-parse: %v", err)
		}

		if !a.VerifyChecksum() {
			t.Errorf("offset %d: fragment_a checksum invalid", k)
		}
		if !b.VerifyChecksum() {
			t.Errorf("offset %d: fragment_b checksum invalid", k)
		}
	}
}

func TestFragIPv4_FlagsAndOffset(t *testing.T) {
	pkt := makeTCPCarryingPacket(t, 1000)
	a, b, err := FragIPv4(pkt, 40)
	if err != nil {
		t.Fatalf("FragIPv4() error = %v", err)
	}

	if a.Flags&FlagMoreFragments == 0 {
		t.Error("fragment_a must have MoreFragments set")
	}
	if b.Flags&FlagMoreFragments != 0 {
		t.Error("fragment_b must not have MoreFragments set when the original did not")
	}
	if b.FragmentOffset != a.FragmentOffset+5 { // 40/8 == 5
		t.Errorf("fragment_b.FragmentOffset = %d, want %d", b.FragmentOffset, a.FragmentOffset+5)
	}
}

func TestFragIPv4_ClearsDFAndReservedOnBothFragments(t *testing.T) {
	pkt := makeTCPCarryingPacket(t, 1000)
	pkt.Flags = FlagDontFragment | FlagReserved

	a, b, err := FragIPv4(pkt, 40)
	if err != nil {
		t.Fatalf("FragIPv4() error = %v", err)
	}

	if a.Flags&(FlagDontFragment|FlagReserved) != 0 {
		t.Errorf("fragment_a.Flags = %03b, DF/Reserved must be cleared on a fragment", a.Flags)
	}
	if b.Flags&(FlagDontFragment|FlagReserved) != 0 {
		t.Errorf("fragment_b.Flags = %03b, DF/Reserved must be cleared on a fragment", b.Flags)
	}
	if a.Flags&FlagMoreFragments == 0 {
		t.Error("fragment_a must still have MoreFragments set")
	}
}

func TestFragIPv4_PreservesMFWhenOriginalFragmented(t *testing.T) {
	pkt := makeTCPCarryingPacket(t, 1000)
	pkt.Flags = FlagMoreFragments

	_, b, err := FragIPv4(pkt, 40)
	if err != nil {
		t.Fatalf("FragIPv4() error = %v", err)
	}
	if b.Flags&FlagMoreFragments == 0 {
		t.Error("fragment_b must preserve MoreFragments from an already-fragmented original")
	}
}

func TestFragIPv4_BoundaryOffsets(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"offset zero", 0},
		{"offset equals payload length", 1000},
		{"not a multiple of 8", 41},
		{"negative", -8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := makeTCPCarryingPacket(t, 1000)
			_, _, err := FragIPv4(pkt, tt.offset)
			if err != ErrInvalidOffset {
				t.Errorf("FragIPv4(%d) error = %v, want ErrInvalidOffset", tt.offset, err)
			}
		})
	}
}

func TestFragIPv4_ChecksumIdempotent(t *testing.T) {
	pkt := makeTCPCarryingPacket(t, 200)
	a, _, err := FragIPv4(pkt, 40)
	if err != nil {
		t.Fatalf("FragIPv4() error = %v", err)
	}

	first, _ := a.Serialize()
	cs1 := a.Checksum
	second, _ := a.Serialize()
	cs2 := a.Checksum

	if cs1 != cs2 {
		t.Errorf("checksum not idempotent: 0x%04x != 0x%04x", cs1, cs2)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-serializing an unchanged fragment produced different bytes")
	}
}
