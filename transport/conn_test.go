package transport

import (
	"net/netip"
	"testing"
)

func TestConnIsValidAckWindowQuirk(t *testing.T) {
	// spec.md S9: is_valid_ack checks the half-open window
	// [seqNum, seqNum+windowSize+1), one wider than the nominal window
	// size. This is a preserved quirk, not a bug: confirm the boundary
	// sits exactly at windowSize+1, not windowSize.
	c := newConn(netip.MustParseAddrPort("127.0.0.1:9"), 5)
	c.send.seqNum = 100

	cases := []struct {
		ack  uint32
		want bool
	}{
		{99, false},
		{100, true},
		{104, true},
		{105, true},  // the extra +1 slot: would be out of range for a plain width-5 window.
		{106, false}, // one past the quirked boundary.
	}
	for _, tc := range cases {
		if got := c.IsValidAck(tc.ack); got != tc.want {
			t.Errorf("IsValidAck(%d) = %v, want %v", tc.ack, got, tc.want)
		}
	}
}

func TestConnIsValidAckWraps(t *testing.T) {
	c := newConn(netip.MustParseAddrPort("127.0.0.1:9"), 3)
	c.send.seqNum = 0xFFFFFFFE // window wraps past 2^32.

	cases := []struct {
		ack  uint32
		want bool
	}{
		{0xFFFFFFFE, true},
		{0xFFFFFFFF, true},
		{0, true},
		{1, true}, // base(2^32-2) + width(4) wraps to 2, so 0,1 are inside.
		{2, false},
		{0xFFFFFFFD, false},
	}
	for _, tc := range cases {
		if got := c.IsValidAck(tc.ack); got != tc.want {
			t.Errorf("IsValidAck(%#x) = %v, want %v", tc.ack, got, tc.want)
		}
	}
}
