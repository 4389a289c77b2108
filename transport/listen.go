package transport

import (
	"errors"
	"net"
	"net/netip"
	"time"

	"github.com/soypat/filecast/segment"
)

// Listen receives at most one datagram, decodes it, and runs it through
// dispatch, returning the parsed segment and the address it came from.
// It fails with ErrTimeout if no datagram arrives before timeout elapses,
// and re-raises a *MalformedSegmentError without dispatching anything if
// the datagram was shorter than the 12-byte header (spec.md S4.3). It
// fails with ErrClosed once the endpoint has been closed.
//
// Listen serializes its own socket access with readMu, so a single reader
// owns the datagram socket and demultiplexes to the connection table
// (spec.md S5) even when several goroutines call Listen concurrently, as
// Broadcast's Config.Parallel workers do: each call fully owns the
// deadline-set-then-read step before any other Listen call may proceed,
// so one worker can never see another worker's read deadline.
func (ep *Endpoint) Listen(timeout time.Duration) (netip.AddrPort, segment.Segment, error) {
	ep.readMu.Lock()
	defer ep.readMu.Unlock()
	select {
	case <-ep.closed:
		return netip.AddrPort{}, segment.Segment{}, ErrClosed
	default:
	}

	buf := make([]byte, segment.MaxDatagram)
	if timeout > 0 {
		if err := ep.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return netip.AddrPort{}, segment.Segment{}, err
		}
	} else {
		_ = ep.conn.SetReadDeadline(time.Time{})
	}

	n, from, err := ep.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return netip.AddrPort{}, segment.Segment{}, ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return netip.AddrPort{}, segment.Segment{}, ErrClosed
		}
		return netip.AddrPort{}, segment.Segment{}, err
	}
	from = normalizeAddr(from)

	seg, checksumOK, err := segment.Decode(buf[:n])
	if err != nil {
		ep.logger.warn("segment", "dropping malformed segment", attrAddr("remote", from), "error", err)
		return netip.AddrPort{}, segment.Segment{}, &MalformedSegmentError{From: from, Err: err}
	}

	ep.dispatch(from, seg, checksumOK)
	return from, seg, nil
}

// normalizeAddr maps IPv4-mapped IPv6 forms onto a plain IPv4
// netip.AddrPort so that connection-table lookups are identity-stable
// regardless of how the kernel reports the source address (spec.md S9's
// "Connection lookup" note about normalizing address comparison).
func normalizeAddr(addr netip.AddrPort) netip.AddrPort {
	ip := addr.Addr()
	if ip.Is4In6() {
		ip = ip.Unmap()
	}
	return netip.AddrPortFrom(ip, addr.Port())
}
