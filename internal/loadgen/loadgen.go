// Package loadgen drives the collection service with concurrent,
// rate-limited test records and keeps a ledger of everything it sent.
package loadgen

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/FairForge/streamtest/internal/metrics"
	"github.com/FairForge/streamtest/internal/record"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is the slice of the transport client a worker needs.
type Sender interface {
	SendMessage(source, body string) error
}

// Config defines load generation parameters.
type Config struct {
	Workers           int
	MessagesPerWorker int
	RatePerWorker     float64 // records per second, per worker
}

// DefaultConfig returns the standard loopback scenario.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MessagesPerWorker: 500,
		RatePerWorker:     100,
	}
}

// Validate checks configuration
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("loadgen: workers must be non-negative")
	}
	if c.MessagesPerWorker < 0 {
		return fmt.Errorf("loadgen: messages per worker must be non-negative")
	}
	if c.Workers > 0 && c.MessagesPerWorker > 0 && c.RatePerWorker <= 0 {
		return fmt.Errorf("loadgen: rate per worker must be positive")
	}
	return nil
}

// TargetRate is the aggregate send rate the run aims for.
func (c Config) TargetRate() float64 {
	return float64(c.Workers) * c.RatePerWorker
}

// Result aggregates one load run.
type Result struct {
	TotalSent  int
	SendErrors int
	Elapsed    time.Duration
	ActualRate float64
	TargetRate float64

	// Sent maps worker id to the sequence numbers recorded at send time:
	// the expectation baseline for integrity verification.
	Sent map[int][]int
}

// RateOK reports whether the achieved rate reached the given fraction of
// target. Sleep-based pacing on a non-realtime scheduler undershoots, so
// callers pass a generous tolerance (0.8 in the standard scenario).
func (r Result) RateOK(tolerance float64) bool {
	if r.TargetRate == 0 {
		return true
	}
	return r.ActualRate >= tolerance*r.TargetRate
}

// Generator runs the concurrent send phase.
type Generator struct {
	client  Sender
	config  Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a load generator. metrics may be nil.
func New(client Sender, config Config, m *metrics.Metrics, logger *zap.Logger) *Generator {
	return &Generator{client: client, config: config, metrics: m, logger: logger}
}

// Run spawns the workers, waits for all of them at the join barrier, and
// merges their private ledgers into the result. A send failure costs one
// record, never the run.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	if err := g.config.Validate(); err != nil {
		return nil, err
	}

	g.logger.Info("starting load",
		zap.Int("workers", g.config.Workers),
		zap.Int("messages_per_worker", g.config.MessagesPerWorker),
		zap.Float64("rate_per_worker", g.config.RatePerWorker))

	ledgers := make([]workerLedger, g.config.Workers)
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < g.config.Workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ledgers[id] = g.runWorker(ctx, id)
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)

	// After the join barrier no writer remains; merging needs no lock.
	result := &Result{
		Elapsed:    elapsed,
		TargetRate: g.config.TargetRate(),
		Sent:       make(map[int][]int, g.config.Workers),
	}
	for id, l := range ledgers {
		result.Sent[id] = l.sent
		result.TotalSent += len(l.sent)
		result.SendErrors += l.errors
	}
	if elapsed > 0 {
		result.ActualRate = float64(result.TotalSent) / elapsed.Seconds()
	}

	g.logger.Info("load complete",
		zap.Int("total_sent", result.TotalSent),
		zap.Int("send_errors", result.SendErrors),
		zap.Duration("elapsed", elapsed),
		zap.Float64("actual_rate", result.ActualRate),
		zap.Float64("target_rate", result.TargetRate))

	return result, nil
}

// workerLedger is one worker's private append-only send record. Each worker
// owns its ledger exclusively until the join barrier.
type workerLedger struct {
	sent   []int
	errors int
}

func (g *Generator) runWorker(ctx context.Context, id int) workerLedger {
	ledger := workerLedger{sent: make([]int, 0, g.config.MessagesPerWorker)}
	source := record.Source(id)
	limiter := rate.NewLimiter(rate.Limit(g.config.RatePerWorker), 1)
	label := strconv.Itoa(id)

	for seq := 0; seq < g.config.MessagesPerWorker; seq++ {
		body := record.Body(id, seq, time.Now())
		if err := g.client.SendMessage(source, body); err != nil {
			// Reported, not fatal: one lost record must not abort the run.
			ledger.errors++
			if g.metrics != nil {
				g.metrics.SendErrors.WithLabelValues(label).Inc()
			}
		} else {
			ledger.sent = append(ledger.sent, seq)
			if g.metrics != nil {
				g.metrics.RecordsSent.WithLabelValues(label).Inc()
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			g.logger.Warn("worker interrupted",
				zap.Int("worker", id),
				zap.Int("sent", len(ledger.sent)),
				zap.Error(err))
			return ledger
		}
	}
	return ledger
}
