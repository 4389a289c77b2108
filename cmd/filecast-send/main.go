// Command filecast-send performs the active side of a transfer: it
// handshakes with one peer (or, with --broadcast, a set of peers gathered
// from an initial listen window) and sends one file, then tears the
// connection down.
package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/filecast/metadata"
	"github.com/soypat/filecast/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listenAddr   string
		remoteAddr   string
		filePath     string
		windowSize   uint32
		broadcast    bool
		collectWait  time.Duration
		verbose      bool
		parallelSend bool
	)
	cmd := &cobra.Command{
		Use:   "filecast-send",
		Short: "Send a file over the filecast reliable-UDP protocol",
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
			cfg := transport.DefaultConfig()
			cfg.Logger = logger
			cfg.Parallel = parallelSend
			if windowSize != 0 {
				cfg.WindowSize = windowSize
			}

			ep, err := transport.Bind(local, transport.NoopHandlers{}, cfg)
			if err != nil {
				return err
			}
			defer ep.Close()

			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			meta := metadataFromPath(filePath)

			if broadcast {
				logger.Info("[!] listening for broadcast requests", "window", collectWait)
				peers := ep.ListenBroadcast(collectWait)
				logger.Info("[!] collected peers", "count", len(peers))
				for _, peer := range peers {
					if _, err := ep.Handshake(peer); err != nil {
						logger.Warn("[!] handshake failed, dropping peer", "peer", peer, "error", err)
					}
				}
				return ep.Broadcast(peers, meta, data)
			}

			remote, err := netip.ParseAddrPort(remoteAddr)
			if err != nil {
				return fmt.Errorf("parsing --remote: %w", err)
			}
			if _, err := ep.Handshake(remote); err != nil {
				return err
			}
			if err := ep.Transfer(remote, meta, data); err != nil {
				return err
			}
			return ep.EndConnection(remote)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "127.0.0.1:0", "local address to bind")
	flags.StringVar(&remoteAddr, "remote", "", "peer address to send to (ignored with --broadcast)")
	flags.StringVar(&filePath, "file", "", "path of the file to send")
	flags.Uint32Var(&windowSize, "window-size", 0, "override the sliding window size (0 keeps the default)")
	flags.BoolVar(&broadcast, "broadcast", false, "collect peers that SYN during a window, then send to all")
	flags.DurationVar(&collectWait, "collect-window", 30*time.Second, "quiet period ending peer collection in --broadcast mode")
	flags.BoolVar(&parallelSend, "parallel", false, "run one goroutine per peer during --broadcast")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func metadataFromPath(path string) metadata.Metadata {
	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return metadata.Metadata{Filename: name, Extension: ext}
}
