package runner

import (
	"time"

	"loadceiling/internal/stats"
)

// Progress is emitted every Config.ProgressEvery completions within a stage.
type Progress struct {
	Workers     int
	Completed   int
	Units       int
	SuccessRate float64
	ConnFails   int
}

// Breakpoint names the level at which the stopping rule fired and the level
// before it. LastGood is absent when the first stage already broke.
type Breakpoint struct {
	Level    int   `json:"level"`
	LastGood Level `json:"last_good"`
}

// Reporter receives the lifecycle of a run. Calls never overlap: Progress
// comes from the stage collector, everything else from the controller.
type Reporter interface {
	StageStarted(workers, units int)
	Progress(p Progress)
	StageFinished(res stats.StageResult, stop bool)
	Halted(bp Breakpoint)
	Pausing(d time.Duration)
}

// OutcomeObserver sees every individual outcome, from the stage collector.
type OutcomeObserver interface {
	Observe(workers int, o QueryOutcome)
}

// Reporters fans a run out to several reporters in order.
type Reporters []Reporter

func (rs Reporters) StageStarted(workers, units int) {
	for _, r := range rs {
		r.StageStarted(workers, units)
	}
}

func (rs Reporters) Progress(p Progress) {
	for _, r := range rs {
		r.Progress(p)
	}
}

func (rs Reporters) StageFinished(res stats.StageResult, stop bool) {
	for _, r := range rs {
		r.StageFinished(res, stop)
	}
}

func (rs Reporters) Halted(bp Breakpoint) {
	for _, r := range rs {
		r.Halted(bp)
	}
}

func (rs Reporters) Pausing(d time.Duration) {
	for _, r := range rs {
		r.Pausing(d)
	}
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) StageStarted(int, int)                {}
func (NopReporter) Progress(Progress)                    {}
func (NopReporter) StageFinished(stats.StageResult, bool) {}
func (NopReporter) Halted(Breakpoint)                    {}
func (NopReporter) Pausing(time.Duration)                {}
