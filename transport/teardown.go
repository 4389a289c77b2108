package transport

import (
	"errors"
	"net/netip"

	"github.com/soypat/filecast/segment"
)

// EndConnection performs the active side of the teardown against remote
// (spec.md S4.3 step 4's counterpart). It is a no-op returning nil if no
// connection record exists for remote. It sends the FIN up to
// Config.HandshakeAttempts times in total (the same attempt budget as Handshake;
// spec.md does not define a separate budget for closing) and returns
// *TeardownError if the peer never replies.
//
// dispatchFin evicts the connection record itself as soon as it has sent
// the completing reply, so success here is observed as the record
// disappearing from the table rather than any field flipping.
func (ep *Endpoint) EndConnection(remote netip.AddrPort) error {
	var present bool
	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		_, present = table[remote]
	})
	if !present {
		return nil
	}

	attempts := ep.cfg.HandshakeAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		ep.logger.info("termination", "sending FIN", attrAddr("remote", remote), "attempt", attempt)
		if err := ep.SendSegment(remote, segment.Fin()); err != nil {
			return err
		}

		for {
			_, _, err := ep.Listen(ep.cfg.TeardownTimeout)
			if err == ErrTimeout {
				break
			}
			var malformed *MalformedSegmentError
			if err != nil && !errors.As(err, &malformed) {
				return err
			}
			var stillPresent bool
			ep.withTable(func(table map[netip.AddrPort]*Conn) {
				_, stillPresent = table[remote]
			})
			if !stillPresent {
				return nil
			}
		}
	}

	return &TeardownError{Remote: remote, Attempts: attempts}
}
