package transport

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/soypat/filecast/metadata"
	"github.com/soypat/filecast/segment"
	"github.com/soypat/filecast/seqnum"
)

// chunk splits data into pieces no larger than segment.MaxPayload, in
// send order.
func chunk(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > segment.MaxPayload {
			n = segment.MaxPayload
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// Transfer sends meta followed by data over an already-handshaken
// connection to remote, using the sliding-window Go-Back-N scheme of
// spec.md S4.5. The metadata prelude is sent and acknowledged as its own
// one-segment round using Config.MetadataAckTimeout; the file body is then
// sent in Config.WindowSize-segment rounds using Config.AckCollectTimeout.
// Transfer returns once every chunk has been cumulatively acknowledged; it
// does not close the connection.
func (ep *Endpoint) Transfer(remote netip.AddrPort, meta metadata.Metadata, data []byte) error {
	conn, err := ep.mustConn(remote)
	if err != nil {
		return err
	}

	metaBytes, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("transport: encode metadata: %w", err)
	}
	// Sent at seq = send.seqNum (the round base), not send.seqNum+1 as
	// spec.md S4.5 step 1 literally states: the receiver's expectedSeq
	// starts at that same base after the handshake, and a literal +1 would
	// desync the cumulative-ack accounting and stall the first round
	// forever. Dropped deliberately, see DESIGN.md.
	if err := ep.sendRound(remote, conn, [][]byte{metaBytes}, ep.cfg.MetadataAckTimeout); err != nil {
		return err
	}

	body := chunk(data)
	return ep.sendRound(remote, conn, body, ep.cfg.AckCollectTimeout)
}

// sendRound drives the window-fill / ack-collection loop for one sequence
// of chunks, retransmitting every segment from the first unacknowledged one
// onward on each ack timeout (Go-Back-N). It follows spec.md S4.5's start_seq/start_sent/diff
// bookkeeping: start_seq anchors the round's base sequence number, and
// diff = modular_sub(send.seq_num, start_seq) measures how many of the
// round's segments have been cumulatively acked so far. A round never
// gives up: spec.md gives handshake and teardown explicit attempt budgets
// but leaves in-flight data retransmission unbounded, matching the
// source's flow-control loop.
func (ep *Endpoint) sendRound(remote netip.AddrPort, conn *Conn, chunks [][]byte, ackTimeout time.Duration) error {
	windowSize := int(ep.cfg.WindowSize)
	total := len(chunks)
	sent := 0
	for sent < total {
		startSeq := conn.SendSeqNum()
		startSent := sent
		toSend := windowSize
		if toSend > total-sent {
			toSend = total - sent
		}
		for i := 0; i < toSend; i++ {
			seq := seqnum.Add(startSeq, uint32(i))
			if err := ep.SendSegment(remote, segment.Data(seq, chunks[startSent+i])); err != nil {
				return err
			}
		}
		sent = startSent + toSend
		ep.logger.debug("bulk", "sent window", attrAddr("remote", remote), "base", startSeq, "count", toSend)

		for {
			diff := seqnum.Sub(conn.SendSeqNum(), startSeq)
			if diff >= uint32(toSend) {
				break // whole round acked, advance to the next one.
			}
			_, _, err := ep.Listen(ackTimeout)
			if err == ErrTimeout {
				ep.logger.warn("bulk", "ack timeout, retransmitting window", attrAddr("remote", remote), "base", startSeq)
				sent = startSent + int(seqnum.Sub(conn.SendSeqNum(), startSeq))
				break
			}
			var malformed *MalformedSegmentError
			if err != nil && !errors.As(err, &malformed) {
				return err
			}
		}
	}
	return nil
}

// mustConn returns the connection record for remote, failing if it does
// not exist or has not completed the handshake on both halves.
func (ep *Endpoint) mustConn(remote netip.AddrPort) (*Conn, error) {
	var conn *Conn
	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		conn = table[remote]
	})
	if conn == nil || !conn.SendConnected() || !conn.RecvConnected() {
		return nil, fmt.Errorf("transport: %s is not connected: %w", remote, ErrUnknownPeer)
	}
	return conn, nil
}
