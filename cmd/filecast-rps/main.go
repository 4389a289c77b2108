// Command filecast-rps is the rock-paper-scissors toy game layered on top
// of the file-transfer transport (original_source's rps.py and player.py):
// a "serve" side collects exactly two players via broadcast, handshakes
// with both, and reads one move segment from each; a "play" side SYNs the
// server, handshakes, and sends its move as the one-segment body of a
// Transfer, after the metadata prelude segment.
package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/filecast/metadata"
	"github.com/soypat/filecast/transport"
)

type move int

const (
	rock move = iota + 1
	paper
	scissors
)

func (m move) String() string {
	switch m {
	case rock:
		return "ROCK"
	case paper:
		return "PAPER"
	case scissors:
		return "SCISSORS"
	default:
		return "INVALID"
	}
}

func parseMove(s string) (move, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 3 {
		return 0, fmt.Errorf("move must be 1 (rock), 2 (paper), or 3 (scissors), got %q", s)
	}
	return move(n), nil
}

// beats reports the outcome of a versus b: 0 if a wins, 1 if b wins, 2 on
// a draw, following rps.py's check() table.
func beats(a, b move) int {
	if a == b {
		return 2
	}
	switch {
	case a == rock && b == scissors,
		a == paper && b == rock,
		a == scissors && b == paper:
		return 0
	default:
		return 1
	}
}

type rpsHandlers struct {
	logger *slog.Logger

	mu     sync.Mutex
	order  []netip.AddrPort
	moves  map[netip.AddrPort]move
	pendingMeta map[netip.AddrPort]bool
}

func newRPSHandlers(logger *slog.Logger) *rpsHandlers {
	return &rpsHandlers{
		logger:      logger,
		moves:       make(map[netip.AddrPort]move),
		pendingMeta: make(map[netip.AddrPort]bool),
	}
}

func (h *rpsHandlers) OnConnect(remote netip.AddrPort) {
	h.mu.Lock()
	h.order = append(h.order, remote)
	h.pendingMeta[remote] = true
	h.mu.Unlock()
}

func (h *rpsHandlers) OnPayload(remote netip.AddrPort, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pendingMeta[remote] {
		// The player's transfer sends a metadata prelude ahead of its
		// move, matching Transfer's framing; discard it.
		h.pendingMeta[remote] = false
		return
	}
	mv, err := parseMove(string(payload))
	if err != nil {
		h.logger.Warn("[GAME] invalid move", "remote", remote, "error", err)
		return
	}
	h.moves[remote] = mv
	h.logger.Info("[GAME] received move", "remote", remote, "move", mv)
}

func (h *rpsHandlers) OnClose(netip.AddrPort) {}

func main() {
	root := &cobra.Command{
		Use:   "filecast-rps",
		Short: "Rock-paper-scissors over the filecast reliable-UDP protocol",
	}
	root.AddCommand(newServeCmd(), newPlayCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var (
		listenAddr  string
		collectWait time.Duration
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Wait for two players and referee a round",
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
			handlers := newRPSHandlers(logger)

			ep, err := transport.Bind(local, handlers, cfg)
			if err != nil {
				return err
			}
			defer ep.Close()

			logger.Info("[!] Listening for players.")
			var players []netip.AddrPort
			for len(players) < 2 {
				batch := ep.ListenBroadcast(collectWait)
				players = append(players, batch...)
				if len(batch) == 0 {
					logger.Info("[!] still waiting", "have", len(players))
				}
			}
			players = players[:2]

			for _, p := range players {
				logger.Info("[!] handshaking with player", "remote", p)
				if _, err := ep.Handshake(p); err != nil {
					return fmt.Errorf("handshake with %s: %w", p, err)
				}
			}

			deadline := time.Now().Add(2 * time.Minute)
			for len(handlers.moves) < 2 && time.Now().Before(deadline) {
				if _, _, err := ep.Listen(5 * time.Second); err != nil && err != transport.ErrTimeout {
					return err
				}
			}
			for _, p := range players {
				_ = ep.EndConnection(p)
			}

			if len(handlers.moves) < 2 {
				return fmt.Errorf("[GAME] did not receive both moves")
			}
			m1, m2 := handlers.moves[players[0]], handlers.moves[players[1]]
			logger.Info("[GAME] moves", "player1", m1, "player2", m2)
			switch beats(m1, m2) {
			case 0:
				logger.Info("[GAME] Game ended! Winner is player 1")
			case 1:
				logger.Info("[GAME] Game ended! Winner is player 2")
			default:
				logger.Info("[GAME] Game ended in a draw!")
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "127.0.0.1:65432", "local address to bind")
	flags.DurationVar(&collectWait, "collect-window", 30*time.Second, "quiet period while gathering players")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newPlayCmd() *cobra.Command {
	var (
		listenAddr string
		serverAddr string
		moveFlag   string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Send one move to a waiting server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			mv, err := parseMove(moveFlag)
			if err != nil {
				return err
			}

			local, err := netip.ParseAddrPort(listenAddr)
			if err != nil {
				return fmt.Errorf("parsing --listen: %w", err)
			}
			server, err := netip.ParseAddrPort(serverAddr)
			if err != nil {
				return fmt.Errorf("parsing --server: %w", err)
			}

			cfg := transport.DefaultConfig()
			cfg.Logger = logger
			ep, err := transport.Bind(local, transport.NoopHandlers{}, cfg)
			if err != nil {
				return err
			}
			defer ep.Close()

			logger.Info("[!] Sent SYN", "server", server)
			if _, err := ep.Handshake(server); err != nil {
				return err
			}
			meta := metadata.Metadata{Filename: "move", Extension: "txt"}
			if err := ep.Transfer(server, meta, []byte(strconv.Itoa(int(mv)))); err != nil {
				return err
			}
			return ep.EndConnection(server)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen", "127.0.0.1:0", "local address to bind")
	flags.StringVar(&serverAddr, "server", "", "address of the filecast-rps serve side")
	flags.StringVar(&moveFlag, "move", "", "1 (rock), 2 (paper), or 3 (scissors)")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("move")
	return cmd
}
