package transport

import (
	"log/slog"
	"time"
)

// Default tuning values. spec.md S9 calls the source's "at most 2 attempts"
// retry budget "tight" and asks that an implementation parameterize it
// rather than hard-code it; Config does exactly that while keeping the
// same default.
const (
	DefaultWindowSize         = 5
	DefaultHandshakeAttempts  = 2
	DefaultHandshakeTimeout   = 2 * time.Second
	DefaultTeardownTimeout    = 2 * time.Second
	DefaultAckCollectTimeout  = 5 * time.Second
	DefaultMetadataAckTimeout = 2 * time.Second
)

// Config tunes the handshake, teardown, and bulk-transfer engines. Bind
// replaces every zero numeric field with its default, so a zero value
// behaves like DefaultConfig(); call DefaultConfig and override fields as
// needed, the way tcp.ConnConfig is populated in the teacher library.
type Config struct {
	// WindowSize is the fixed number of outstanding unacknowledged
	// segments the sliding-window sender permits in flight.
	WindowSize uint32
	// HandshakeAttempts bounds the number of SYN transmissions Handshake
	// makes before giving up with HandshakeError, and the number of FIN
	// transmissions EndConnection makes before giving up with
	// TeardownError.
	HandshakeAttempts int
	// HandshakeTimeout is the per-attempt listen deadline during the
	// three-way open.
	HandshakeTimeout time.Duration
	// TeardownTimeout is the per-attempt listen deadline during the
	// three-message close.
	TeardownTimeout time.Duration
	// AckCollectTimeout is the per-listen deadline while draining
	// cumulative acks for a filled window during bulk transfer.
	AckCollectTimeout time.Duration
	// MetadataAckTimeout is the listen deadline while waiting for the
	// metadata prelude's cumulative ack.
	MetadataAckTimeout time.Duration
	// Parallel selects one goroutine per peer during Broadcast instead of
	// sequential per-peer transfer.
	Parallel bool
	// Logger receives structured, role-tagged log lines for every
	// significant transport event (spec.md S7). Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config populated with spec.md's defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:         DefaultWindowSize,
		HandshakeAttempts:  DefaultHandshakeAttempts,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		TeardownTimeout:    DefaultTeardownTimeout,
		AckCollectTimeout:  DefaultAckCollectTimeout,
		MetadataAckTimeout: DefaultMetadataAckTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.HandshakeAttempts == 0 {
		c.HandshakeAttempts = DefaultHandshakeAttempts
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.TeardownTimeout == 0 {
		c.TeardownTimeout = DefaultTeardownTimeout
	}
	if c.AckCollectTimeout == 0 {
		c.AckCollectTimeout = DefaultAckCollectTimeout
	}
	if c.MetadataAckTimeout == 0 {
		c.MetadataAckTimeout = DefaultMetadataAckTimeout
	}
	return c
}
