package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/streamtest/internal/config"
	"github.com/FairForge/streamtest/internal/metrics"
	"github.com/FairForge/streamtest/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCollector emulates the UDP log collection service: it listens on
// loopback, rotates a session file on NEW_SESSION, and appends one decorated
// line per received record.
type fakeCollector struct {
	conn        *net.UDPConn
	sessionsDir string

	mu      sync.Mutex
	file    *os.File
	session int
	persist bool
}

func startFakeCollector(t *testing.T, sessionsDir string, persist bool) *fakeCollector {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	c := &fakeCollector{conn: conn, sessionsDir: sessionsDir, persist: persist}
	go c.serve()
	t.Cleanup(func() {
		_ = conn.Close()
		c.mu.Lock()
		if c.file != nil {
			_ = c.file.Close()
		}
		c.mu.Unlock()
	})
	return c
}

func (c *fakeCollector) addr() (host string, port int) {
	h, p, _ := net.SplitHostPort(c.conn.LocalAddr().String())
	n, _ := strconv.Atoi(p)
	return h, n
}

func (c *fakeCollector) serve() {
	buf := make([]byte, 2048)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		c.handle(string(buf[:n]))
	}
}

func (c *fakeCollector) handle(payload string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	source, body, ok := strings.Cut(payload, "|")
	if !ok {
		return
	}
	switch {
	case source == "CMD" && body == "NEW_SESSION":
		if !c.persist {
			return
		}
		c.session++
		_ = os.MkdirAll(c.sessionsDir, 0750)
		f, err := os.Create(filepath.Join(c.sessionsDir, fmt.Sprintf("session_%03d.log", c.session)))
		if err != nil {
			return
		}
		c.file = f
		_, _ = fmt.Fprintf(f, "==========================================\n")
		_, _ = fmt.Fprintf(f, "Session %d started\n", c.session)
		_, _ = fmt.Fprintf(f, "==========================================\n")
	case source == "CMD" && body == "END_SESSION":
		if c.file != nil {
			_, _ = fmt.Fprintf(c.file, "Session %d ended\n", c.session)
			_ = c.file.Close()
			c.file = nil
		}
	case source == "PING":
		// Reachability probe, not log traffic.
	default:
		if c.file != nil {
			_, _ = fmt.Fprintf(c.file, "[%s] %s: %s\n", time.Now().Format("15:04:05.000"), source, body)
		}
	}
}

func testConfig(collector *fakeCollector, dir string) *config.Config {
	cfg := config.Default()
	cfg.Target.Host, cfg.Target.Port = collector.addr()
	cfg.Load.Workers = 2
	cfg.Load.MessagesPerWorker = 20
	cfg.Load.RatePerWorker = 2000
	cfg.Session.StartSettle = 50 * time.Millisecond
	cfg.Session.FlushSettle = 100 * time.Millisecond
	cfg.Artifact.SessionsDir = filepath.Join(dir, "log_sessions")
	cfg.Artifact.StreamPath = filepath.Join(dir, "unified_stream.log")
	cfg.Artifact.SettleWait = 500 * time.Millisecond
	cfg.Artifact.QuietWindow = 100 * time.Millisecond
	cfg.Server.Manage = false
	return cfg
}

func TestHarness_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	collector := startFakeCollector(t, filepath.Join(dir, "log_sessions"), true)
	cfg := testConfig(collector, dir)

	h := New(cfg, nil, metrics.New(), zap.NewNop())
	report, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Availability)
	assert.True(t, report.IntegrityOK, "integrity: %+v", report.Integrity)
	assert.True(t, report.RateOK)
	assert.True(t, report.Pass())
	assert.NotEmpty(t, report.RunID)

	require.NotNil(t, report.Load)
	assert.Equal(t, 40, report.Load.TotalSent)

	require.NotNil(t, report.Integrity)
	require.Len(t, report.Integrity.Workers, 2)
	for _, w := range report.Integrity.Workers {
		assert.Empty(t, w.Missing)
		assert.Empty(t, w.Extra)
	}
}

type failingChecker struct{}

func (failingChecker) EnsureAvailable(ctx context.Context, timeout time.Duration) error {
	return errors.New("target never came up")
}

func TestHarness_UnavailableTargetAbortsBeforeLoad(t *testing.T) {
	dir := t.TempDir()
	collector := startFakeCollector(t, filepath.Join(dir, "log_sessions"), true)
	cfg := testConfig(collector, dir)

	h := New(cfg, failingChecker{}, nil, zap.NewNop())
	report, err := h.Run(context.Background())

	require.Error(t, err)
	assert.False(t, report.Availability)
	assert.Nil(t, report.Load, "load phase must not execute")
	assert.False(t, report.Pass())

	// No session file may have been created.
	_, statErr := os.Stat(filepath.Join(dir, "log_sessions"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHarness_MissingArtifactIsFatal(t *testing.T) {
	dir := t.TempDir()
	// Collector receives traffic but never persists anything.
	collector := startFakeCollector(t, filepath.Join(dir, "log_sessions"), false)
	cfg := testConfig(collector, dir)
	cfg.Artifact.SettleWait = 100 * time.Millisecond

	h := New(cfg, nil, nil, zap.NewNop())
	report, err := h.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, verify.ErrNoArtifact)
	assert.True(t, report.Availability)
	assert.False(t, report.IntegrityOK)
	assert.False(t, report.Pass())
}

func TestHarness_DegenerateRunPasses(t *testing.T) {
	dir := t.TempDir()
	collector := startFakeCollector(t, filepath.Join(dir, "log_sessions"), true)
	cfg := testConfig(collector, dir)
	cfg.Load.Workers = 0
	cfg.Artifact.SettleWait = 100 * time.Millisecond

	h := New(cfg, nil, nil, zap.NewNop())
	report, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Pass())
	assert.Zero(t, report.Load.TotalSent)
	assert.Empty(t, report.Integrity.Workers)
}

func TestReport_Pass(t *testing.T) {
	assert.True(t, Report{Availability: true, RateOK: true, IntegrityOK: true}.Pass())
	assert.False(t, Report{Availability: true, RateOK: false, IntegrityOK: true}.Pass())
	assert.False(t, Report{}.Pass())
}
