package transport

import (
	"log/slog"
	"net/netip"
)

// logger is a nil-safe wrapper around *slog.Logger, embedded by Endpoint
// the same way tcp.ControlBlock embeds a logger in the teacher library.
// A zero-value logger silently discards every call, so callers that never
// configure a Config.Logger pay no cost and get no output.
type logger struct {
	log *slog.Logger
}

func (l logger) enabled() bool { return l.log != nil }

func (l logger) debug(role, msg string, args ...any) {
	if l.log != nil {
		l.log.Debug(msg, append([]any{"role", role}, args...)...)
	}
}

func (l logger) info(role, msg string, args ...any) {
	if l.log != nil {
		l.log.Info(msg, append([]any{"role", role}, args...)...)
	}
}

func (l logger) warn(role, msg string, args ...any) {
	if l.log != nil {
		l.log.Warn(msg, append([]any{"role", role}, args...)...)
	}
}

// attrAddr renders a netip.AddrPort as a single slog attribute without
// going through fmt, mirroring internal.SlogAddr4's style of a cheap,
// allocation-light network-address log attribute.
func attrAddr(key string, addr netip.AddrPort) slog.Attr {
	return slog.String(key, addr.String())
}
