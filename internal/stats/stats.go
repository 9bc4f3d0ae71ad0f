package stats

import (
	"sync"
	"time"
)

// StageResult is the finalized aggregate of one concurrency level.
type StageResult struct {
	Workers            int           `json:"workers"`
	Total              int           `json:"total"`
	Successful         int           `json:"successful"`
	Failed             int           `json:"failed"`
	ConnectionFailures int           `json:"connection_failures"`
	SuccessRate        float64       `json:"success_rate"`
	AvgSuccessDuration time.Duration `json:"avg_success_duration_ns"`

	// Latency percentiles over successful outcomes
	P50         time.Duration `json:"p50_ns"`
	P95         time.Duration `json:"p95_ns"`
	P99         time.Duration `json:"p99_ns"`
	MaxDuration time.Duration `json:"max_ns"`

	// Wall clock of the stage and the highest observed in-flight count
	Elapsed      time.Duration `json:"elapsed_ns"`
	PeakInFlight int           `json:"peak_in_flight"`

	// Partial marks a stage cut short by an interrupt; it was never judged.
	Partial bool `json:"partial,omitempty"`
}

// Snapshot is the running view of a stage while it executes.
type Snapshot struct {
	Completed          int
	Successful         int
	ConnectionFailures int
	SuccessRate        float64
}

// SuccessRate returns successful/total as a percentage, 0 when total is 0.
func SuccessRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// Tally folds outcomes of a single stage. Every update is a commutative
// increment, so completion order does not affect the finalized result.
type Tally struct {
	mu                 sync.Mutex
	total              int
	successful         int
	connectionFailures int
	successDuration    time.Duration

	latency *SafeHistogram
}

func NewTally() *Tally {
	return &Tally{latency: NewSafeHistogram()}
}

// Add folds one outcome and returns the running snapshot after it.
// connectionFailure is ignored for successful outcomes.
func (t *Tally) Add(success, connectionFailure bool, d time.Duration) Snapshot {
	if success {
		t.latency.RecordDuration(d)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	switch {
	case success:
		t.successful++
		t.successDuration += d
	case connectionFailure:
		t.connectionFailures++
	}
	return t.snapshotLocked()
}

func (t *Tally) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tally) snapshotLocked() Snapshot {
	return Snapshot{
		Completed:          t.total,
		Successful:         t.successful,
		ConnectionFailures: t.connectionFailures,
		SuccessRate:        SuccessRate(t.successful, t.total),
	}
}

// Finalize builds the StageResult for workers. Elapsed and PeakInFlight are
// left for the caller, which owns the wall clock of the stage.
func (t *Tally) Finalize(workers int) StageResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var avg time.Duration
	if t.successful > 0 {
		avg = t.successDuration / time.Duration(t.successful)
	}

	return StageResult{
		Workers:            workers,
		Total:              t.total,
		Successful:         t.successful,
		Failed:             t.total - t.successful,
		ConnectionFailures: t.connectionFailures,
		SuccessRate:        SuccessRate(t.successful, t.total),
		AvgSuccessDuration: avg,
		P50:                t.latency.Quantile(50),
		P95:                t.latency.Quantile(95),
		P99:                t.latency.Quantile(99),
		MaxDuration:        t.latency.Max(),
	}
}
