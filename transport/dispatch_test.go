package transport

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/soypat/filecast/segment"
)

// spyHandlers records every callback invocation for assertions.
type spyHandlers struct {
	mu        sync.Mutex
	connected []netip.AddrPort
	closed    []netip.AddrPort
	payloads  [][]byte
}

func (s *spyHandlers) OnConnect(remote netip.AddrPort) {
	s.mu.Lock()
	s.connected = append(s.connected, remote)
	s.mu.Unlock()
}

func (s *spyHandlers) OnClose(remote netip.AddrPort) {
	s.mu.Lock()
	s.closed = append(s.closed, remote)
	s.mu.Unlock()
}

func (s *spyHandlers) OnPayload(_ netip.AddrPort, payload []byte) {
	s.mu.Lock()
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	s.mu.Unlock()
}

func newTestEndpoint(t *testing.T, h Handlers) *Endpoint {
	t.Helper()
	if h == nil {
		h = NoopHandlers{}
	}
	ep, err := Bind(netip.MustParseAddrPort("127.0.0.1:0"), h, DefaultConfig())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return ep
}

func TestDispatchDropsBadChecksum(t *testing.T) {
	spy := &spyHandlers{}
	ep := newTestEndpoint(t, spy)
	peer := netip.MustParseAddrPort("127.0.0.1:1")

	ep.dispatch(peer, segment.Syn(42), false)

	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		if len(table) != 0 {
			t.Fatalf("expected no connection record after bad-checksum SYN, got %d", len(table))
		}
	})
}

func TestDispatchPassiveHandshake(t *testing.T) {
	spy := &spyHandlers{}
	ep := newTestEndpoint(t, spy)
	peer := netip.MustParseAddrPort("127.0.0.1:1")

	ep.dispatch(peer, segment.Syn(1000), true)

	var conn *Conn
	ep.withTable(func(table map[netip.AddrPort]*Conn) { conn = table[peer] })
	if conn == nil {
		t.Fatal("expected connection record to be created on SYN")
	}
	if !conn.RecvConnected() {
		t.Fatal("expected recv half to be connected after SYN")
	}
	if conn.SendConnected() {
		t.Fatal("send half should not be connected until the final ACK arrives")
	}

	ep.dispatch(peer, segment.Ack(conn.SendSeqNum()), true)
	if !conn.SendConnected() {
		t.Fatal("expected send half to be connected after final ACK")
	}
	if len(spy.connected) != 1 || spy.connected[0] != peer {
		t.Fatalf("expected exactly one OnConnect(%v), got %v", peer, spy.connected)
	}
}

func TestDispatchDataInOrderAndOutOfOrder(t *testing.T) {
	spy := &spyHandlers{}
	ep := newTestEndpoint(t, spy)
	peer := netip.MustParseAddrPort("127.0.0.1:1")

	// Establish recv-side only (enough for data delivery).
	ep.dispatch(peer, segment.Syn(0), true)
	var conn *Conn
	ep.withTable(func(table map[netip.AddrPort]*Conn) { conn = table[peer] })
	base := conn.ExpectedSeqNum()

	ep.dispatch(peer, segment.Data(base, []byte("hello")), true)
	if len(spy.payloads) != 1 || string(spy.payloads[0]) != "hello" {
		t.Fatalf("expected in-order payload delivered, got %v", spy.payloads)
	}
	if conn.ExpectedSeqNum() != base+1 {
		t.Fatalf("expected expectedSeq to advance to %d, got %d", base+1, conn.ExpectedSeqNum())
	}

	// Out-of-order: skip ahead, should be dropped and not advance.
	ep.dispatch(peer, segment.Data(base+5, []byte("skip")), true)
	if len(spy.payloads) != 1 {
		t.Fatalf("expected out-of-order segment to be dropped, payloads=%v", spy.payloads)
	}
	if conn.ExpectedSeqNum() != base+1 {
		t.Fatalf("expectedSeq should not advance on out-of-order segment, got %d", conn.ExpectedSeqNum())
	}
}

func TestDispatchTeardown(t *testing.T) {
	spy := &spyHandlers{}
	ep := newTestEndpoint(t, spy)
	peer := netip.MustParseAddrPort("127.0.0.1:1")

	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		table[peer] = newConn(peer, DefaultWindowSize)
	})

	ep.dispatch(peer, segment.Fin(), true)

	ep.withTable(func(table map[netip.AddrPort]*Conn) {
		if _, ok := table[peer]; ok {
			t.Fatal("expected connection record evicted after FIN")
		}
	})
	if len(spy.closed) != 1 || spy.closed[0] != peer {
		t.Fatalf("expected exactly one OnClose(%v), got %v", peer, spy.closed)
	}
}
