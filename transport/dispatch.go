package transport

import (
	"net/netip"

	"github.com/soypat/filecast/segment"
	"github.com/soypat/filecast/seqnum"
)

// dispatch runs one decoded segment through the protocol state machine,
// mutating the connection table and replying as needed. It never blocks:
// every reply is a single best-effort SendSegment, and every retransmission
// of a control segment is driven by the peer re-sending its own unacked
// segment rather than by a timer on this side (spec.md S4.3's "bounded
// retry" is satisfied end to end by the active side's own retry loop in
// Handshake/EndConnection; see DESIGN.md).
//
// dispatch is called from Listen for every segment received, whether or
// not the caller is itself inside Handshake, EndConnection, or Transfer;
// those methods only poll Conn accessors to notice the effect dispatch has
// already applied.
func (ep *Endpoint) dispatch(from netip.AddrPort, seg segment.Segment, checksumOK bool) {
	if !checksumOK {
		ep.logger.warn("segment", "dropping segment with bad checksum", attrAddr("remote", from), "seq", seg.SeqNum)
		return
	}

	flags := seg.Flags.Mask()
	hasSyn := flags.HasAny(segment.FlagSYN)
	hasFin := flags.HasAny(segment.FlagFIN)
	hasAck := flags.HasAny(segment.FlagACK)

	switch {
	case hasSyn:
		ep.dispatchSyn(from, seg, hasAck)
	case hasFin:
		ep.dispatchFin(from, seg, hasAck)
	case hasAck:
		ep.dispatchAck(from, seg)
	default:
		ep.dispatchData(from, seg)
	}
}

// dispatchSyn handles a bare SYN (passive open, spec.md S4.3 step 2) or a
// SYN|ACK (the active opener observing the reply to its own SYN, step 3).
func (ep *Endpoint) dispatchSyn(from netip.AddrPort, seg segment.Segment, hasAck bool) {
	ep.mu.Lock()
	conn := ep.table[from]
	if conn == nil {
		conn = newConn(from, ep.cfg.WindowSize)
		conn.send.seqNum = seqnum.Random()
		ep.table[from] = conn
	}
	wasBoth := conn.send.connected && conn.recv.connected
	if hasAck {
		if conn.IsValidAck(seg.AckNum) {
			conn.send.seqNum = seg.AckNum
			conn.send.connected = true
		} else {
			ep.logger.warn("handshake", "dropping SYN|ACK with ack outside send window", attrAddr("remote", from), "ack", seg.AckNum)
		}
	}
	conn.recv.expectedSeq = seqnum.Add(seg.SeqNum, 1)
	conn.recv.connected = true
	both := conn.send.connected && conn.recv.connected
	sendSeq, sendAck := conn.send.seqNum, conn.recv.expectedSeq
	ep.mu.Unlock()

	if hasAck {
		ep.logger.info("handshake", "received SYN|ACK, completing active open", attrAddr("remote", from))
		_ = ep.SendSegment(from, segment.Ack(sendAck))
	} else {
		ep.logger.info("handshake", "received SYN, replying SYN|ACK", attrAddr("remote", from))
		_ = ep.SendSegment(from, segment.SynAck(sendSeq, sendAck))
	}
	if both && !wasBoth {
		ep.noteConnected(from)
		ep.handlers.OnConnect(from)
	}
}

// dispatchFin handles a bare FIN (passive close, spec.md S4.3 step 4) or a
// FIN|ACK (the active closer observing the reply to its own FIN).
//
// Each side evicts its own connection record and fires OnClose as soon as
// it has sent its own reply, rather than waiting for a further
// acknowledgment: the final ACK(0) the active closer sends afterward is a
// courtesy message preserved from the source implementation's quirk
// (spec.md S9) that the passive side is not required to observe, since by
// the time it would arrive the passive side's record is already gone.
func (ep *Endpoint) dispatchFin(from netip.AddrPort, seg segment.Segment, hasAck bool) {
	ep.mu.Lock()
	conn := ep.table[from]
	if conn != nil {
		delete(ep.table, from)
	}
	ep.mu.Unlock()

	if conn == nil {
		ep.logger.warn("termination", "dropping FIN for unknown peer", attrAddr("remote", from))
		return
	}

	if hasAck {
		ep.logger.info("termination", "received FIN|ACK, completing active close", attrAddr("remote", from))
		_ = ep.SendSegment(from, segment.Ack(0))
	} else {
		ep.logger.info("termination", "received FIN, replying FIN|ACK", attrAddr("remote", from))
		_ = ep.SendSegment(from, segment.FinAck())
	}
	ep.handlers.OnClose(from)
}

// dispatchAck handles a bare ACK: it either completes the passive side of a
// handshake (the peer acknowledging our SYN|ACK) or advances the send
// window's base during bulk transfer. Both cases reduce to the same rule:
// a valid ack moves send.seqNum forward and, the first time it does so
// after recv is already connected, fires OnConnect.
func (ep *Endpoint) dispatchAck(from netip.AddrPort, seg segment.Segment) {
	ep.mu.Lock()
	conn := ep.table[from]
	if conn == nil {
		ep.mu.Unlock()
		ep.logger.warn("segment", "dropping ACK for unknown peer", attrAddr("remote", from))
		return
	}
	if !conn.IsValidAck(seg.AckNum) {
		ep.mu.Unlock()
		ep.logger.warn("segment", "dropping ACK outside send window", attrAddr("remote", from), "ack", seg.AckNum, "base", conn.send.seqNum)
		return
	}
	wasConnected := conn.send.connected
	conn.send.seqNum = seg.AckNum
	conn.send.connected = true
	both := conn.send.connected && conn.recv.connected
	ep.mu.Unlock()

	if !wasConnected && both {
		ep.logger.info("handshake", "received final handshake ACK", attrAddr("remote", from))
		ep.noteConnected(from)
		ep.handlers.OnConnect(from)
	}
}

// dispatchData handles a flagless segment carrying a payload (or an empty
// in-order keepalive), replying with a cumulative ACK. Out-of-order
// segments are dropped but re-acked with the last good expected sequence
// number, the standard Go-Back-N receiver behavior spec.md S4.5 requires.
func (ep *Endpoint) dispatchData(from netip.AddrPort, seg segment.Segment) {
	ep.mu.Lock()
	conn := ep.table[from]
	if conn == nil || !conn.recv.connected {
		ep.mu.Unlock()
		ep.logger.warn("segment", "dropping data for unconnected peer", attrAddr("remote", from))
		return
	}
	inOrder := seg.SeqNum == conn.recv.expectedSeq
	if inOrder {
		conn.recv.expectedSeq = seqnum.Add(conn.recv.expectedSeq, 1)
	}
	ackNum := conn.recv.expectedSeq
	ep.mu.Unlock()

	_ = ep.SendSegment(from, segment.Ack(ackNum))
	if inOrder {
		ep.handlers.OnPayload(from, seg.Payload)
	} else {
		ep.logger.debug("segment", "dropping out-of-order segment", attrAddr("remote", from), "seq", seg.SeqNum, "expected", ackNum)
	}
}
