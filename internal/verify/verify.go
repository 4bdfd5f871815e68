// Package verify reads the artifact the collection service persisted and
// reconciles it against the load generator's send ledger.
package verify

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/FairForge/streamtest/internal/record"
	"go.uber.org/zap"
)

// WorkerResult is the reconciliation outcome for one worker.
type WorkerResult struct {
	WorkerID int
	Sent     int
	Observed int
	Missing  []int
	Extra    []int

	// DuplicateSuspect flags |observed| < |sent|: either records were lost
	// or the set collapsed duplicates. A warning, not a failure.
	DuplicateSuspect bool
}

// Pass reports whether this worker's observed set matches its expected set.
func (w WorkerResult) Pass() bool {
	return len(w.Missing) == 0 && len(w.Extra) == 0
}

// Report is the outcome of integrity verification.
type Report struct {
	Artifact   string
	TotalLines int
	Workers    []WorkerResult
}

// Pass reports whether every worker reconciled cleanly.
func (r Report) Pass() bool {
	for _, w := range r.Workers {
		if !w.Pass() {
			return false
		}
	}
	return true
}

// Verifier checks a persisted artifact against an expectation baseline.
type Verifier struct {
	sessionsDir string
	streamPath  string
	logger      *zap.Logger
}

// New creates a verifier over the configured artifact locations.
func New(sessionsDir, streamPath string, logger *zap.Logger) *Verifier {
	return &Verifier{sessionsDir: sessionsDir, streamPath: streamPath, logger: logger}
}

// Verify locates the artifact, parses it, and reconciles per-worker observed
// sets against the sent ledger. sent maps worker id to the sequence numbers
// recorded at send time.
func (v *Verifier) Verify(sent map[int][]int) (*Report, error) {
	path, err := SelectArtifact(v.sessionsDir, v.streamPath, v.logger)
	if err != nil {
		return nil, err
	}

	observed, totalLines, err := v.scan(path, len(sent))
	if err != nil {
		return nil, err
	}

	report := &Report{Artifact: path, TotalLines: totalLines}
	for _, id := range sortedWorkers(sent) {
		report.Workers = append(report.Workers, reconcile(id, sent[id], observed[id]))
	}

	for _, w := range report.Workers {
		v.logWorker(w)
	}
	return report, nil
}

// scan does the single linear pass over the artifact. Structural lines and
// foreign log traffic are expected and skipped without comment.
func (v *Verifier) scan(path string, workers int) (map[int]map[int]bool, int, error) {
	f, err := os.Open(path) // #nosec G304 - path chosen by SelectArtifact
	if err != nil {
		return nil, 0, fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	observed := make(map[int]map[int]bool, workers)
	totalLines := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		totalLines++

		if isStructural(line) {
			continue
		}
		id, seq, ok := record.Parse(line)
		if !ok {
			continue
		}
		set := observed[id]
		if set == nil {
			set = make(map[int]bool)
			observed[id] = set
		}
		set[seq] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read artifact: %w", err)
	}

	v.logger.Info("artifact scanned",
		zap.String("path", path),
		zap.Int("total_lines", totalLines))
	return observed, totalLines, nil
}

// isStructural recognizes the banner and session header/footer lines the
// collection service writes around the record body.
func isStructural(line string) bool {
	return strings.Contains(line, "====") || strings.Contains(line, "Session")
}

func reconcile(id int, sent []int, observed map[int]bool) WorkerResult {
	result := WorkerResult{
		WorkerID: id,
		Sent:     len(sent),
		Observed: len(observed),
	}

	expected := make(map[int]bool, len(sent))
	for _, seq := range sent {
		expected[seq] = true
	}

	for seq := range expected {
		if !observed[seq] {
			result.Missing = append(result.Missing, seq)
		}
	}
	for seq := range observed {
		if !expected[seq] {
			result.Extra = append(result.Extra, seq)
		}
	}
	sort.Ints(result.Missing)
	sort.Ints(result.Extra)

	result.DuplicateSuspect = len(observed) < len(sent)
	return result
}

func sortedWorkers(sent map[int][]int) []int {
	ids := make([]int, 0, len(sent))
	for id := range sent {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (v *Verifier) logWorker(w WorkerResult) {
	switch {
	case len(w.Missing) > 0:
		preview := w.Missing
		if len(preview) > 10 {
			preview = preview[:10]
		}
		v.logger.Warn("worker missing records",
			zap.Int("worker", w.WorkerID),
			zap.Int("missing", len(w.Missing)),
			zap.Ints("first_missing", preview))
	case len(w.Extra) > 0:
		v.logger.Warn("worker has unexpected sequences",
			zap.Int("worker", w.WorkerID),
			zap.Int("extra", len(w.Extra)))
	default:
		v.logger.Info("worker reconciled",
			zap.Int("worker", w.WorkerID),
			zap.Int("records", w.Observed))
	}
	if w.DuplicateSuspect {
		v.logger.Warn("possible duplicates or loss",
			zap.Int("worker", w.WorkerID),
			zap.Int("sent", w.Sent),
			zap.Int("observed", w.Observed))
	}
}
