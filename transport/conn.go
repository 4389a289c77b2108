package transport

import (
	"net/netip"

	"github.com/soypat/filecast/seqnum"
)

// sendHalf is the send-side state of a connection record (spec.md S3).
//
// State progression mirrors spec.md S4.4's send half-connection state
// machine (IDLE -> SYN_SENT -> ESTABLISHED -> FIN_SENT -> CLOSED), but is
// represented with the single `connected` flag plus the record's
// presence/absence in the Endpoint's connection table rather than an
// explicit State enum: spec.md's state space collapses onto exactly those
// two axes, and a dedicated enum would duplicate information already
// implied by the table (see DESIGN.md's Open Question decision).
type sendHalf struct {
	seqNum     uint32 // sequence base of the oldest unacknowledged byte/segment.
	windowSize uint32 // fixed default 5.
	connected  bool
}

// recvHalf is the receive-side state of a connection record (spec.md S3).
// State progression mirrors IDLE -> SYN_RECEIVED -> ESTABLISHED ->
// FIN_RECEIVED -> CLOSED, collapsed the same way as sendHalf.
type recvHalf struct {
	expectedSeq uint32 // next sequence expected from peer.
	connected   bool
}

// Conn is one per-peer connection record, keyed by remote address in the
// Endpoint's connection table. Conn exists in the table iff the peer has
// completed at least the first step of the handshake (spec.md S3).
type Conn struct {
	remote netip.AddrPort
	send   sendHalf
	recv   recvHalf
}

func newConn(remote netip.AddrPort, windowSize uint32) *Conn {
	return &Conn{
		remote: remote,
		send:   sendHalf{windowSize: windowSize},
	}
}

// Remote returns the peer address this record tracks.
func (c *Conn) Remote() netip.AddrPort { return c.remote }

// SendConnected reports whether the local side has observed an ACK of its
// SYN and may send data.
func (c *Conn) SendConnected() bool { return c.send.connected }

// RecvConnected reports whether the peer's SYN has been observed and
// payloads may be delivered.
func (c *Conn) RecvConnected() bool { return c.recv.connected }

// SendSeqNum returns the current send-side sequence base.
func (c *Conn) SendSeqNum() uint32 { return c.send.seqNum }

// ExpectedSeqNum returns the next sequence number expected from the peer.
func (c *Conn) ExpectedSeqNum() uint32 { return c.recv.expectedSeq }

// IsValidAck reports whether ackNum lies in the live send window per
// spec.md S3/S4.2: the half-open interval [send.seqNum, send.seqNum +
// windowSize + 1), inclusive at the base, exclusive at the top, with
// seqnum.InWindow handling the modular wrap. The "+1" beyond the nominal
// window width is a preserved quirk from the source implementation
// (spec.md S9) rather than a bug: sequence_max is deliberately window+1
// wide.
func (c *Conn) IsValidAck(ackNum uint32) bool {
	return seqnum.InWindow(c.send.seqNum, c.send.windowSize+1, ackNum)
}
