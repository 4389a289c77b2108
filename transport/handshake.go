package transport

import (
	"errors"
	"net/netip"

	"github.com/soypat/filecast/segment"
	"github.com/soypat/filecast/seqnum"
)

// Handshake performs the active side of the three-way open against remote
// (spec.md S4.3 steps 1 and 3). It installs the connection record before
// sending the first SYN so that dispatch, running inside Listen, has
// somewhere to record the reply, then sends the SYN up to
// Config.HandshakeAttempts times in total, waiting Config.HandshakeTimeout for a
// reply each time. It returns *HandshakeError if no reply arrives within
// the attempt budget.
func (ep *Endpoint) Handshake(remote netip.AddrPort) (*Conn, error) {
	conn := newConn(remote, ep.cfg.WindowSize)
	conn.send.seqNum = seqnum.Random()
	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		table[remote] = conn
	})

	attempts := ep.cfg.HandshakeAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		ep.logger.info("handshake", "sending SYN", attrAddr("remote", remote), "attempt", attempt)
		if err := ep.SendSegment(remote, segment.Syn(conn.send.seqNum)); err != nil {
			return nil, err
		}

		for {
			_, _, err := ep.Listen(ep.cfg.HandshakeTimeout)
			if err == ErrTimeout {
				break // retransmit the SYN.
			}
			var malformed *MalformedSegmentError
			if err != nil && !errors.As(err, &malformed) {
				return nil, err
			}
			if conn.SendConnected() && conn.RecvConnected() {
				return conn, nil
			}
			// Some unrelated or malformed segment arrived during the wait;
			// keep listening out the rest of this attempt's timeout.
		}
	}

	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		delete(table, remote)
	})
	return nil, &HandshakeError{Remote: remote, Attempts: attempts}
}
