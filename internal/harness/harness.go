// Package harness wires the three test phases together: availability probe,
// rate-controlled load, and artifact integrity verification.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/FairForge/streamtest/internal/config"
	"github.com/FairForge/streamtest/internal/loadgen"
	"github.com/FairForge/streamtest/internal/metrics"
	"github.com/FairForge/streamtest/internal/probe"
	"github.com/FairForge/streamtest/internal/session"
	"github.com/FairForge/streamtest/internal/udpclient"
	"github.com/FairForge/streamtest/internal/verify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Report is the aggregate outcome of one run. Availability failures abort
// before load; the other two checks are soft and always both evaluated.
type Report struct {
	RunID        string
	Availability bool
	RateOK       bool
	IntegrityOK  bool
	Load         *loadgen.Result
	Integrity    *verify.Report
}

// Pass is the conjunction of the three checks; the process exit status
// reflects it.
func (r Report) Pass() bool {
	return r.Availability && r.RateOK && r.IntegrityOK
}

// Harness runs the full protocol against one target.
type Harness struct {
	cfg     *config.Config
	checker probe.Checker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New builds a harness. checker may be nil, in which case one is derived
// from the config (managed startup when Server.Manage is set).
func New(cfg *config.Config, checker probe.Checker, m *metrics.Metrics, logger *zap.Logger) *Harness {
	if checker == nil {
		if cfg.Server.Manage {
			checker = probe.NewProcessManager(probe.ProcessOptions{
				Addr:          cfg.Target.Addr(),
				BinaryPath:    cfg.Server.BinaryPath,
				WorkDir:       cfg.Server.WorkDir,
				Pattern:       cfg.Server.ProcessPattern,
				StartupSettle: cfg.Server.StartupSettle,
			}, logger)
		} else {
			checker = probe.NewCheckOnly(cfg.Target.Addr(), logger)
		}
	}
	return &Harness{cfg: cfg, checker: checker, metrics: m, logger: logger}
}

// Run executes probe, session-bracketed load, and verification.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.New().String()}
	logger := h.logger.With(zap.String("run_id", report.RunID))

	logger.Info("checking collection service", zap.String("addr", h.cfg.Target.Addr()))
	if err := h.checker.EnsureAvailable(ctx, h.cfg.Target.ProbeTimeout); err != nil {
		// Fatal: no reachable target makes every later phase meaningless.
		return report, fmt.Errorf("target unavailable: %w", err)
	}
	report.Availability = true

	client, err := udpclient.Dial(h.cfg.Target.Addr(), logger)
	if err != nil {
		return report, err
	}
	defer func() { _ = client.Close() }()

	ctl := session.NewController(client, h.cfg.Session.StartSettle, h.cfg.Session.FlushSettle, logger)
	if err := ctl.Begin(ctx); err != nil {
		return report, fmt.Errorf("begin session: %w", err)
	}

	gen := loadgen.New(client, loadgen.Config{
		Workers:           h.cfg.Load.Workers,
		MessagesPerWorker: h.cfg.Load.MessagesPerWorker,
		RatePerWorker:     h.cfg.Load.RatePerWorker,
	}, h.metrics, logger)

	loadResult, err := gen.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("load phase: %w", err)
	}
	report.Load = loadResult
	report.RateOK = loadResult.RateOK(h.cfg.Load.RateTolerance)
	if !report.RateOK {
		logger.Warn("rate below tolerance",
			zap.Float64("actual", loadResult.ActualRate),
			zap.Float64("target", loadResult.TargetRate),
			zap.Float64("tolerance", h.cfg.Load.RateTolerance))
	}

	if err := ctl.End(ctx); err != nil {
		return report, fmt.Errorf("end session: %w", err)
	}

	// Let the service finish its final writes before reading the artifact.
	verify.WaitSettled(ctx, h.watchDir(), h.cfg.Artifact.QuietWindow, h.cfg.Artifact.SettleWait, logger)

	verifier := verify.New(h.cfg.Artifact.SessionsDir, h.cfg.Artifact.StreamPath, logger)
	integrity, err := verifier.Verify(loadResult.Sent)
	if err != nil {
		// Missing artifact is the second fatal condition.
		return report, fmt.Errorf("integrity phase: %w", err)
	}
	report.Integrity = integrity
	report.IntegrityOK = integrity.Pass()

	h.summarize(logger, report)
	return report, nil
}

func (h *Harness) watchDir() string {
	if dir := h.cfg.Artifact.SessionsDir; dir != "" {
		return dir
	}
	return filepath.Dir(h.cfg.Artifact.StreamPath)
}

func (h *Harness) summarize(logger *zap.Logger, report *Report) {
	fields := []zap.Field{
		zap.Bool("availability", report.Availability),
		zap.Bool("rate", report.RateOK),
		zap.Bool("integrity", report.IntegrityOK),
	}
	if report.Load != nil {
		fields = append(fields,
			zap.Int("sent", report.Load.TotalSent),
			zap.Duration("elapsed", report.Load.Elapsed.Round(time.Millisecond)),
			zap.Float64("rate_msg_per_sec", report.Load.ActualRate))
	}
	if report.Pass() {
		logger.Info("all checks passed", fields...)
	} else {
		logger.Error("checks failed", fields...)
	}
}
