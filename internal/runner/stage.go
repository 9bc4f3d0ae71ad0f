package runner

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loadceiling/internal/catalog"
	"loadceiling/internal/stats"
)

// QueryExecutor runs one unit of work.
type QueryExecutor interface {
	Execute(ctx context.Context, name, text string) QueryOutcome
}

// StageRunner executes one concurrency level at a time.
type StageRunner struct {
	exec          QueryExecutor
	catalog       *catalog.Catalog
	rng           *rand.Rand
	reporter      Reporter
	observer      OutcomeObserver
	progressEvery int
	logger        *zap.Logger
}

type StageOption func(*StageRunner)

func WithReporter(r Reporter) StageOption {
	return func(s *StageRunner) { s.reporter = r }
}

func WithObserver(o OutcomeObserver) StageOption {
	return func(s *StageRunner) { s.observer = o }
}

func WithProgressEvery(n int) StageOption {
	return func(s *StageRunner) {
		if n > 0 {
			s.progressEvery = n
		}
	}
}

func WithLogger(l *zap.Logger) StageOption {
	return func(s *StageRunner) { s.logger = l }
}

// NewStageRunner samples queries from cat using rng. rng is only used from
// the goroutine calling Run.
func NewStageRunner(exec QueryExecutor, cat *catalog.Catalog, rng *rand.Rand, opts ...StageOption) *StageRunner {
	s := &StageRunner{
		exec:          exec,
		catalog:       cat,
		rng:           rng,
		reporter:      NopReporter{},
		progressEvery: 10,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run submits units randomly sampled queries to a pool of exactly workers
// concurrent executions and folds their outcomes. It returns once every
// dispatched unit has completed. Cancelling ctx stops dispatching; units
// already running finish under their own timeouts.
func (s *StageRunner) Run(ctx context.Context, workers, units int) stats.StageResult {
	work := make([]catalog.Query, units)
	for i := range work {
		work[i] = s.catalog.Sample(s.rng)
	}

	tally := stats.NewTally()
	outcomes := make(chan QueryOutcome, workers)
	collected := make(chan struct{})

	// Single collector: folds, observes and reports in completion order.
	go func() {
		defer close(collected)
		for o := range outcomes {
			snap := tally.Add(o.Success(), o.Status == StatusConnectionFailure, o.Duration)
			if s.observer != nil {
				s.observer.Observe(workers, o)
			}
			if snap.Completed%s.progressEvery == 0 {
				s.reporter.Progress(Progress{
					Workers:     workers,
					Completed:   snap.Completed,
					Units:       units,
					SuccessRate: snap.SuccessRate,
					ConnFails:   snap.ConnectionFailures,
				})
			}
		}
	}()

	var inflight, peak int64
	execCtx := context.WithoutCancel(ctx)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(workers)

	dispatched := 0
	for _, q := range work {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n := atomic.AddInt64(&inflight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			defer atomic.AddInt64(&inflight, -1)

			outcomes <- s.exec.Execute(execCtx, q.Name, q.Text)
			return nil
		})
		dispatched++
	}

	_ = g.Wait()
	close(outcomes)
	<-collected

	if dispatched < units {
		s.logger.Warn("stage cut short",
			zap.Int("workers", workers),
			zap.Int("dispatched", dispatched),
			zap.Int("units", units))
	}

	res := tally.Finalize(workers)
	res.Elapsed = time.Since(start)
	res.PeakInFlight = int(atomic.LoadInt64(&peak))
	return res
}
