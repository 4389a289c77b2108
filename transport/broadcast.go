package transport

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/filecast/metadata"
)

// noteConnected records remote as a candidate for the next ListenBroadcast
// drain. It is harmless to call when no broadcast collection is in
// progress; the set is simply drained and discarded.
func (ep *Endpoint) noteConnected(remote netip.AddrPort) {
	ep.broadcastMu.Lock()
	ep.broadcastPending[remote] = struct{}{}
	ep.broadcastMu.Unlock()
}

// ListenBroadcast gathers the set of peers that complete a handshake with
// this endpoint during a quiet collection window, for the supplemented
// one-to-many send flow (spec.md S9's broadcast orchestration note, absent
// from the baseline spec but present in the source's server.py). It resets
// its candidate set, then calls Listen in a loop -- dispatch continues to
// answer SYNs and complete handshakes exactly as in the point-to-point
// case -- until timeout elapses with no datagram arriving at all, and
// returns every peer that reached full handshake completion during that
// window.
func (ep *Endpoint) ListenBroadcast(timeout time.Duration) []netip.AddrPort {
	ep.broadcastMu.Lock()
	ep.broadcastPending = make(map[netip.AddrPort]struct{})
	ep.broadcastMu.Unlock()

	for {
		_, _, err := ep.Listen(timeout)
		if err == ErrTimeout {
			break
		}
		// Malformed segments and other per-datagram errors don't end the
		// collection window; only a quiet period does.
	}

	ep.broadcastMu.Lock()
	defer ep.broadcastMu.Unlock()
	peers := make([]netip.AddrPort, 0, len(ep.broadcastPending))
	for addr := range ep.broadcastPending {
		peers = append(peers, addr)
	}
	return peers
}

// Broadcast sends meta and data to every address in peers, then tears each
// connection down. With Config.Parallel set it runs one goroutine per peer
// (spec.md S5's concurrency note); otherwise it transfers sequentially,
// mirroring the source's single-threaded for-loop over clients. Errors
// from individual peers are collected and joined rather than aborting the
// whole broadcast.
func (ep *Endpoint) Broadcast(peers []netip.AddrPort, meta metadata.Metadata, data []byte) error {
	if !ep.cfg.Parallel {
		var errs []error
		for _, peer := range peers {
			if err := ep.sendToPeer(peer, meta, data); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, peer := range peers {
		wg.Add(1)
		go func(peer netip.AddrPort) {
			defer wg.Done()
			if err := ep.sendToPeer(peer, meta, data); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(peer)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (ep *Endpoint) sendToPeer(peer netip.AddrPort, meta metadata.Metadata, data []byte) error {
	if err := ep.Transfer(peer, meta, data); err != nil {
		return err
	}
	return ep.EndConnection(peer)
}
