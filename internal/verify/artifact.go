package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrNoArtifact means nothing was persisted where the verifier looked.
// It is fatal: an absent artifact can never be a passing run.
var ErrNoArtifact = errors.New("verify: no persisted artifact found")

// sessionPattern matches per-session files in the sessions directory.
const sessionPattern = "session_*.log"

// SelectArtifact picks the file to verify. A sessions directory wins over
// the single well-known path; within it the file with the greatest mtime is
// chosen, ties broken by name so the choice is deterministic.
func SelectArtifact(sessionsDir, streamPath string, logger *zap.Logger) (string, error) {
	if info, err := os.Stat(sessionsDir); err == nil && info.IsDir() {
		chosen, err := latestSessionFile(sessionsDir)
		if err != nil {
			return "", err
		}
		if chosen != "" {
			logger.Info("reading session artifact", zap.String("path", chosen))
			reportSymlink(streamPath, logger)
			return chosen, nil
		}
		// Directory exists but holds no session files: that is a missing
		// artifact, not a reason to silently pass.
		return "", fmt.Errorf("%w: %s is empty", ErrNoArtifact, sessionsDir)
	}

	if _, err := os.Stat(streamPath); err == nil {
		logger.Info("sessions directory absent, using stream artifact",
			zap.String("path", streamPath))
		return streamPath, nil
	}
	return "", fmt.Errorf("%w: neither %s nor %s exists", ErrNoArtifact, sessionsDir, streamPath)
}

func latestSessionFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, sessionPattern))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}

	var chosen string
	var chosenMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if chosen == "" || mod.After(chosenMod) || (mod.Equal(chosenMod) && path > chosen) {
			chosen = path
			chosenMod = mod
		}
	}
	return chosen, nil
}

// reportSymlink notes when the well-known path points at the active session
// file, which is how the collection service advertises it.
func reportSymlink(streamPath string, logger *zap.Logger) {
	info, err := os.Lstat(streamPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return
	}
	target, err := os.Readlink(streamPath)
	if err != nil {
		return
	}
	logger.Info("stream symlink present",
		zap.String("link", streamPath),
		zap.String("target", target))
}

// WaitSettled blocks until no write lands in dir for quiet, or until maxWait
// expires. It replaces a blind post-run sleep: the verifier wants the
// service to have finished its final writes before reading the artifact.
// Any watch failure degrades to a plain sleep of maxWait.
func WaitSettled(ctx context.Context, dir string, quiet, maxWait time.Duration, logger *zap.Logger) {
	if maxWait <= 0 {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		sleepFallback(ctx, maxWait)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		logger.Debug("artifact watch unavailable", zap.String("dir", dir), zap.Error(err))
		sleepFallback(ctx, maxWait)
		return
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	quietTimer := time.NewTimer(quiet)
	defer quietTimer.Stop()

	for {
		select {
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if !quietTimer.Stop() {
					select {
					case <-quietTimer.C:
					default:
					}
				}
				quietTimer.Reset(quiet)
			}
		case <-watcher.Errors:
			sleepFallback(ctx, quiet)
			return
		case <-quietTimer.C:
			return
		case <-deadline.C:
			logger.Debug("artifact still busy at deadline", zap.String("dir", dir))
			return
		case <-ctx.Done():
			return
		}
	}
}

func sleepFallback(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
