package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loadceiling/internal/stats"
)

// State of the escalation walk.
type State int

const (
	StateRunning State = iota
	StateHalted
	StateCompleted
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, c := range []State{StateRunning, StateHalted, StateCompleted, StateInterrupted} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// RunReport is the full history of a run.
type RunReport struct {
	RunID      string              `json:"run_id"`
	Target     string              `json:"target"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Config     Config              `json:"config"`
	Stages     []stats.StageResult `json:"stages"`
	State      State               `json:"state"`
	Breakpoint *Breakpoint         `json:"breakpoint,omitempty"`
	MaxStable  Level               `json:"max_stable_level"`
}

// ShouldStop is the stopping rule: the target has entered overload.
func ShouldStop(res stats.StageResult, t Thresholds) bool {
	return res.SuccessRate < t.StopSuccessRate || res.ConnectionFailures > t.StopConnFailures
}

// IsStable is the stricter stability rule, independent of ShouldStop.
func IsStable(res stats.StageResult, t Thresholds) bool {
	return res.SuccessRate >= t.StableSuccessRate && res.ConnectionFailures < t.StableConnFailures
}

// MaxStableLevel returns the largest worker count among stable stages.
// Partial stages were never judged and do not count.
func MaxStableLevel(stages []stats.StageResult, t Thresholds) Level {
	var best Level
	for _, s := range stages {
		if !s.Partial && IsStable(s, t) && (!best.Found || s.Workers > best.Workers) {
			best = LevelOf(s.Workers)
		}
	}
	return best
}

// StageExecutor runs one concurrency level. *StageRunner is the real one.
type StageExecutor interface {
	Run(ctx context.Context, workers, units int) stats.StageResult
}

// Controller walks concurrency levels sequentially until the stopping rule
// fires or max is reached.
type Controller struct {
	cfg      Config
	stages   StageExecutor
	reporter Reporter
	logger   *zap.Logger
	target   string

	pause func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewController(cfg Config, stages StageExecutor, reporter Reporter, logger *zap.Logger) *Controller {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		stages:   stages,
		reporter: reporter,
		logger:   logger,
		pause:    sleep,
		now:      time.Now,
	}
}

// WithTarget labels the report with the address under test.
func (c *Controller) WithTarget(addr string) *Controller {
	c.target = addr
	return c
}

// Run validates the configuration and executes the walk. Only configuration
// errors are returned; a cancelled ctx ends the walk in StateInterrupted.
func (c *Controller) Run(ctx context.Context) (RunReport, error) {
	if err := c.cfg.Validate(); err != nil {
		return RunReport{}, err
	}

	report := RunReport{
		RunID:     uuid.NewString(),
		Target:    c.target,
		StartedAt: c.now(),
		Config:    c.cfg,
		State:     StateRunning,
	}
	th := c.cfg.Thresholds
	levels := c.cfg.Levels()

	c.logger.Info("run started",
		zap.String("run_id", report.RunID),
		zap.String("target", c.target),
		zap.Ints("levels", levels))

	for i, workers := range levels {
		if ctx.Err() != nil {
			report.State = StateInterrupted
			break
		}

		c.reporter.StageStarted(workers, c.cfg.UnitsPerStage)
		res := c.stages.Run(ctx, workers, c.cfg.UnitsPerStage)

		if ctx.Err() != nil && res.Total < c.cfg.UnitsPerStage {
			// Cut short: recorded, but not judged.
			res.Partial = true
			report.Stages = append(report.Stages, res)
			c.reporter.StageFinished(res, false)
			c.logger.Warn("stage interrupted",
				zap.Int("workers", workers),
				zap.Int("completed", res.Total),
				zap.Int("units", c.cfg.UnitsPerStage))
			report.State = StateInterrupted
			break
		}
		report.Stages = append(report.Stages, res)

		stop := ShouldStop(res, th)
		c.reporter.StageFinished(res, stop)
		c.logger.Info("stage finished",
			zap.Int("workers", workers),
			zap.Int("total", res.Total),
			zap.Float64("success_rate", res.SuccessRate),
			zap.Int("connection_failures", res.ConnectionFailures),
			zap.Duration("avg_success", res.AvgSuccessDuration),
			zap.Bool("stop", stop))

		if stop {
			bp := Breakpoint{Level: workers}
			if i > 0 {
				bp.LastGood = LevelOf(levels[i-1])
			}
			report.Breakpoint = &bp
			report.State = StateHalted
			c.reporter.Halted(bp)
			break
		}

		if i == len(levels)-1 {
			report.State = StateCompleted
			break
		}

		if c.cfg.Pause > 0 {
			c.reporter.Pausing(c.cfg.Pause)
			if err := c.pause(ctx, c.cfg.Pause); err != nil {
				report.State = StateInterrupted
				break
			}
		}
	}

	report.FinishedAt = c.now()
	report.MaxStable = MaxStableLevel(report.Stages, th)

	c.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Stringer("state", report.State),
		zap.Stringer("max_stable", report.MaxStable))

	return report, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
