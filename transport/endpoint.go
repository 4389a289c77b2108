// Package transport implements the core of the reliable file-transfer
// protocol: the per-connection state machine (C2), the endpoint that owns
// the datagram socket and dispatches inbound segments (C3), the
// handshake/teardown engine (C4), and the sliding-window Go-Back-N bulk
// transfer engine (C5). See spec.md and SPEC_FULL.md.
package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/soypat/filecast/segment"
)

// Handlers collects the three optional callbacks an application may
// install on an Endpoint, replacing the source's mutable
// register_handler/register_on_connect/register_on_close globals with a
// single interface supplied at construction (spec.md S9's "Callback
// model" redesign note).
type Handlers interface {
	// OnPayload is invoked once per in-order data segment delivered to an
	// established connection.
	OnPayload(remote netip.AddrPort, payload []byte)
	// OnConnect is invoked exactly once per connection when both halves
	// become connected.
	OnConnect(remote netip.AddrPort)
	// OnClose is invoked once per connection when an incoming FIN or
	// FIN|ACK evicts its record from the table during teardown.
	OnClose(remote netip.AddrPort)
}

// NoopHandlers implements Handlers with no-op methods; embed it to
// implement only the callbacks a particular application cares about.
type NoopHandlers struct{}

func (NoopHandlers) OnPayload(netip.AddrPort, []byte) {}
func (NoopHandlers) OnConnect(netip.AddrPort)         {}
func (NoopHandlers) OnClose(netip.AddrPort)           {}

// Endpoint owns one bound UDP socket and a table mapping remote addresses
// to connection records (spec.md S3's "Endpoint state"). Every table
// access (dispatch, Handshake, EndConnection, Transfer) is serialized by
// mu; in the baseline
// single-threaded model that serialization is uncontended, but it is load
// bearing once Broadcast runs one goroutine per peer (spec.md S5).
type Endpoint struct {
	conn     *net.UDPConn
	local    netip.AddrPort
	handlers Handlers
	cfg      Config
	logger   logger

	mu    sync.Mutex
	table map[netip.AddrPort]*Conn

	// readMu serializes Listen's socket read so that exactly one goroutine
	// ever owns SetReadDeadline+ReadFromUDPAddrPort at a time, even when
	// Config.Parallel has several Broadcast workers each calling Listen on
	// their own goroutine. Without it, concurrent deadline calls on the
	// shared socket stomp on each other (see dispatch.go and broadcast.go).
	readMu sync.Mutex

	// broadcastPending holds addresses whose handshake with this endpoint
	// completed on both halves since the last ListenBroadcast reset it
	// (see broadcast.go).
	broadcastMu      sync.Mutex
	broadcastPending map[netip.AddrPort]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Bind creates and binds a UDP socket at local, ready to handshake and
// transfer. h may be nil, in which case NoopHandlers is used.
func Bind(local netip.AddrPort, h Handlers, cfg Config) (*Endpoint, error) {
	cfg = cfg.withDefaults()
	if h == nil {
		h = NoopHandlers{}
	}
	udpConn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", local, err)
	}
	boundAddr := udpConn.LocalAddr().(*net.UDPAddr).AddrPort()
	ep := &Endpoint{
		conn:             udpConn,
		local:            boundAddr,
		handlers:         h,
		cfg:              cfg,
		logger:           logger{log: cfg.Logger},
		table:            make(map[netip.AddrPort]*Conn),
		broadcastPending: make(map[netip.AddrPort]struct{}),
		closed:           make(chan struct{}),
	}
	return ep, nil
}

// LocalAddr returns the address the endpoint's socket is bound to.
func (ep *Endpoint) LocalAddr() netip.AddrPort { return ep.local }

// Close releases the datagram socket. Safe to call more than once.
func (ep *Endpoint) Close() error {
	var err error
	ep.closeOnce.Do(func() {
		close(ep.closed)
		err = ep.conn.Close()
	})
	return err
}

// SendSegment atomically encodes and transmits one datagram to remote. It
// never blocks beyond the OS send buffer and never retries (spec.md S4.3).
func (ep *Endpoint) SendSegment(remote netip.AddrPort, seg segment.Segment) error {
	buf, err := segment.Encode(seg)
	if err != nil {
		return err
	}
	_, err = ep.conn.WriteToUDPAddrPort(buf, remote)
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", remote, err)
	}
	ep.logger.debug("segment", "sent segment", attrAddr("remote", remote), "seq", seg.SeqNum, "ack", seg.AckNum, "flags", seg.Flags.String())
	return nil
}

// withTable runs fn with the connection table locked. Used by dispatch and
// by tests that need to inspect table state deterministically.
func (ep *Endpoint) withTable(fn func(table map[netip.AddrPort]*Conn)) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	fn(ep.table)
}
