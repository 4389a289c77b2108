// Command filecast-recv is the passive side of a transfer: it binds a
// socket, accepts one or more incoming handshakes, and writes each
// completed transfer to --out as <filename>.<extension>.
package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/filecast/metadata"
	"github.com/soypat/filecast/transport"
)

// recvHandlers buffers each peer's first payload as its metadata prelude
// and every later payload as a file chunk, writing the reassembled file to
// disk once the connection closes (the same is_first/handle_message shape
// client.py uses).
type recvHandlers struct {
	outDir string
	logger *slog.Logger

	mu    sync.Mutex
	peers map[netip.AddrPort]*peerState
}

type peerState struct {
	meta    metadata.Metadata
	haveMeta bool
	chunks  [][]byte
}

func newRecvHandlers(outDir string, logger *slog.Logger) *recvHandlers {
	return &recvHandlers{
		outDir: outDir,
		logger: logger,
		peers:  make(map[netip.AddrPort]*peerState),
	}
}

func (h *recvHandlers) OnConnect(remote netip.AddrPort) {
	h.mu.Lock()
	h.peers[remote] = &peerState{}
	h.mu.Unlock()
	h.logger.Info("[Handshake] connected", "remote", remote)
}

func (h *recvHandlers) OnPayload(remote netip.AddrPort, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.peers[remote]
	if st == nil {
		return
	}
	if !st.haveMeta {
		meta, err := metadata.Decode(payload)
		if err != nil {
			h.logger.Warn("[!] malformed metadata prelude", "remote", remote, "error", err)
			return
		}
		st.meta = meta
		st.haveMeta = true
		return
	}
	st.chunks = append(st.chunks, append([]byte(nil), payload...))
}

func (h *recvHandlers) OnClose(remote netip.AddrPort) {
	h.mu.Lock()
	st := h.peers[remote]
	delete(h.peers, remote)
	h.mu.Unlock()
	if st == nil || !st.haveMeta {
		return
	}

	var size int
	for _, c := range st.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range st.chunks {
		data = append(data, c...)
	}

	outPath := filepath.Join(h.outDir, st.meta.OutputPath())
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		h.logger.Error("[!] failed to write received file", "remote", remote, "path", outPath, "error", err)
		return
	}
	h.logger.Info("[!] wrote received file", "remote", remote, "path", outPath, "bytes", len(data))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenAddr string
		outDir     string
		verbose    bool
		idle       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "filecast-recv",
		Short: "Receive files over the filecast reliable-UDP protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			local, err := netip.ParseAddrPort(listenAddr)
			if err != nil {
				return fmt.Errorf("parsing --listen: %w", err)
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			cfg := transport.DefaultConfig()
			cfg.Logger = logger
			handlers := newRecvHandlers(outDir, logger)

			ep, err := transport.Bind(local, handlers, cfg)
			if err != nil {
				return err
			}
			defer ep.Close()

			logger.Info("[!] listening", "addr", ep.LocalAddr())
			for {
				_, _, err := ep.Listen(idle)
				if err == transport.ErrTimeout {
					logger.Info("[!] idle timeout, shutting down")
					return nil
				}
				if err != nil {
					logger.Warn("[!] listen error", "error", err)
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "127.0.0.1:9000", "local address to bind")
	flags.StringVar(&outDir, "out", "output", "directory received files are written to")
	flags.DurationVar(&idle, "idle-timeout", 5*time.Minute, "shut down after this much inactivity")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}
