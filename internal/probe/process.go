package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ProcessManager is the managed-startup Checker: it scans the process table
// for the service, builds the binary if it is missing, launches it detached
// from the harness's lifetime, and then verifies UDP reachability.
type ProcessManager struct {
	addr          string
	binaryPath    string
	workDir       string
	pattern       string
	startupSettle time.Duration
	logger        *zap.Logger
}

// ProcessOptions configures a ProcessManager.
type ProcessOptions struct {
	Addr          string
	BinaryPath    string
	WorkDir       string
	Pattern       string
	StartupSettle time.Duration
}

// NewProcessManager creates a Checker that can start the service itself.
func NewProcessManager(opts ProcessOptions, logger *zap.Logger) *ProcessManager {
	if opts.StartupSettle <= 0 {
		opts.StartupSettle = time.Second
	}
	return &ProcessManager{
		addr:          opts.Addr,
		binaryPath:    opts.BinaryPath,
		workDir:       opts.WorkDir,
		pattern:       opts.Pattern,
		startupSettle: opts.StartupSettle,
		logger:        logger,
	}
}

// EnsureAvailable makes the service reachable or fails the run.
func (p *ProcessManager) EnsureAvailable(ctx context.Context, timeout time.Duration) error {
	pid, err := p.findProcess(ctx)
	if err != nil {
		return err
	}
	if pid != "" {
		p.logger.Info("collection service already running", zap.String("pid", pid))
		return Reachable(ctx, p.addr, timeout, p.logger)
	}

	p.logger.Info("collection service not running, starting it")
	if err := p.startService(ctx); err != nil {
		return err
	}

	pid, err = p.findProcess(ctx)
	if err != nil {
		return err
	}
	if pid == "" {
		return fmt.Errorf("service did not appear in process table after launch")
	}
	p.logger.Info("collection service started", zap.String("pid", pid))

	return Reachable(ctx, p.addr, timeout, p.logger)
}

// findProcess returns the pid(s) of a running service, or "" when absent.
func (p *ProcessManager) findProcess(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pgrep", "-f", p.pattern).Output()
	if err != nil {
		// pgrep exits 1 when nothing matches; that is a normal answer.
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("scan process table: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *ProcessManager) startService(ctx context.Context) error {
	if _, err := os.Stat(p.binaryPath); os.IsNotExist(err) {
		p.logger.Info("service binary missing, building", zap.String("path", p.binaryPath))
		build := exec.CommandContext(ctx, "make", "-C", filepath.Dir(p.binaryPath))
		if out, err := build.CombinedOutput(); err != nil {
			return fmt.Errorf("build service: %w: %s", err, strings.TrimSpace(string(out)))
		}
	}

	// Not CommandContext: the service must outlive the harness run.
	cmd := exec.Command(p.binaryPath)
	cmd.Dir = p.workDir
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch service: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		p.logger.Warn("release service process handle", zap.Error(err))
	}
	p.logger.Debug("service launched", zap.Int("pid", pid))

	// Give it a moment to bind the port before re-checking.
	select {
	case <-time.After(p.startupSettle):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
