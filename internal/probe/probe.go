// Package probe decides whether the target collection service is reachable
// before any load is generated. Two implementations of the Checker capability
// exist: CheckOnly for environments where something else supervises the
// service, and ProcessManager which can build and launch it on demand.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// probeToken is the reachability datagram. The collection service treats
// unknown sources as plain log traffic, so the probe is harmless.
const probeToken = "PING|Test"

// Checker reports whether the target service can receive datagrams.
// A returned error is fatal for the run: no later phase is meaningful
// without a reachable target.
type Checker interface {
	EnsureAvailable(ctx context.Context, timeout time.Duration) error
}

// CheckOnly verifies UDP reachability and nothing else.
type CheckOnly struct {
	addr   string
	logger *zap.Logger
}

// NewCheckOnly creates a reachability-only checker.
func NewCheckOnly(addr string, logger *zap.Logger) *CheckOnly {
	return &CheckOnly{addr: addr, logger: logger}
}

// EnsureAvailable sends a probe datagram and reports socket-level failure.
func (c *CheckOnly) EnsureAvailable(ctx context.Context, timeout time.Duration) error {
	return Reachable(ctx, c.addr, timeout, c.logger)
}

// Reachable sends one probe datagram on a throwaway socket. UDP gives no
// positive acknowledgment; what this catches is an immediate socket-level
// error (no route, port unreachable on a connected socket, resolution
// failure), which is the strongest signal the transport offers.
func Reachable(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("probe dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		logger.Warn("probe deadline", zap.Error(err))
	}
	if _, err := conn.Write([]byte(probeToken)); err != nil {
		return fmt.Errorf("probe send %s: %w", addr, err)
	}
	logger.Debug("udp port reachable", zap.String("addr", addr))
	return nil
}
