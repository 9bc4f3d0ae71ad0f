// Package cli wires a run together and prints it the headless way.
package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"loadceiling/internal/catalog"
	"loadceiling/internal/dummy"
	"loadceiling/internal/metrics"
	"loadceiling/internal/report"
	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
	"loadceiling/internal/target"
	"loadceiling/internal/tui"
)

const ruler = "============================================================"

// Printer reports a run as plain stdout lines.
type Printer struct {
	W io.Writer
}

func (p Printer) StageStarted(workers, units int) {
	fmt.Fprintf(p.W, "\n🔄 Testing %d concurrent connections (%d queries)...\n", workers, units)
}

func (p Printer) Progress(pr runner.Progress) {
	fmt.Fprintf(p.W, "  Progress: %d/%d | Success rate: %.1f%%\n", pr.Completed, pr.Units, pr.SuccessRate)
}

func (p Printer) StageFinished(res stats.StageResult, _ bool) {
	fmt.Fprintf(p.W, "\n📊 Results for %d workers:\n", res.Workers)
	fmt.Fprintf(p.W, "   Success rate: %.1f%%\n", res.SuccessRate)
	fmt.Fprintf(p.W, "   Avg time: %.3fs\n", res.AvgSuccessDuration.Seconds())
	fmt.Fprintf(p.W, "   P95: %.3fs | Max: %.3fs\n", res.P95.Seconds(), res.MaxDuration.Seconds())
	fmt.Fprintf(p.W, "   Failed connections: %d\n", res.ConnectionFailures)
}

func (p Printer) Halted(bp runner.Breakpoint) {
	fmt.Fprintf(p.W, "\n🔴 BREAKING POINT REACHED at %d workers!\n", bp.Level)
	if bp.LastGood.Found {
		fmt.Fprintf(p.W, "   Maximum stable load: ~%d workers\n", bp.LastGood.Workers)
	} else {
		fmt.Fprintf(p.W, "   The first stage already failed\n")
	}
}

func (p Printer) Pausing(d time.Duration) {
	fmt.Fprintf(p.W, "⏸  Pausing %s before next stage...\n", d)
}

func printHeader(w io.Writer, cfg runner.Config, addr string, cat *catalog.Catalog) {
	th := cfg.Thresholds
	fmt.Fprintf(w, "\n🚀 STARTING LOAD TEST\n")
	fmt.Fprintf(w, "%s\n", ruler)
	fmt.Fprintf(w, "Target      : %s\n", addr)
	fmt.Fprintf(w, "Workers     : %d → %d (step %d)\n", cfg.StartWorkers, cfg.MaxWorkers, cfg.Step)
	fmt.Fprintf(w, "Queries     : %d per stage, %d in catalog\n", cfg.UnitsPerStage, cat.Len())
	fmt.Fprintf(w, "Stop when   : success < %.0f%% or failed connections > %d\n", th.StopSuccessRate, th.StopConnFailures)
	fmt.Fprintf(w, "Connections : %s\n", cfg.ConnPolicy)
	fmt.Fprintf(w, "%s\n", ruler)
}

// Options describes one invocation.
type Options struct {
	Config runner.Config
	// Dummy selects the simulated target instead of ClickHouse.
	Dummy *dummy.ServerConfig
	// QueriesFile replaces the built-in catalog when set.
	QueriesFile string

	OutPrefix   string
	JSON        bool
	TUI         bool
	MetricsAddr string

	Stdout io.Writer
	Logger *zap.Logger
}

// Start runs an escalation end to end and returns the process exit code.
func Start(ctx context.Context, opts Options) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	cfg := opts.Config

	if err := cfg.Validate(); err != nil {
		return report.ExitError, err
	}

	cat := catalog.Default()
	if opts.QueriesFile != "" {
		loaded, err := catalog.Load(opts.QueriesFile)
		if err != nil {
			return report.ExitError, err
		}
		cat = loaded
	}

	connector, addr := buildConnector(cfg, opts.Dummy)
	if cfg.ConnPolicy == target.PolicyShared {
		shared := target.NewShared(connector)
		defer func() {
			if err := shared.Close(); err != nil {
				logger.Warn("closing shared connection", zap.Error(err))
			}
		}()
		connector = shared
	}

	recorder := metrics.NewRecorder()
	if opts.MetricsAddr != "" {
		mctx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			if err := recorder.Serve(mctx, opts.MetricsAddr, logger); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	run := func(ctx context.Context, rep runner.Reporter) (runner.RunReport, error) {
		reporters := runner.Reporters{recorder}
		if rep != nil {
			reporters = append(reporters, rep)
		}
		exec := runner.NewExecutor(connector, cfg.ConnectTimeout, cfg.IOTimeout, logger)
		stages := runner.NewStageRunner(exec, cat, newRNG(cfg.Seed),
			runner.WithReporter(reporters),
			runner.WithObserver(recorder),
			runner.WithProgressEvery(cfg.ProgressEvery),
			runner.WithLogger(logger))
		return runner.NewController(cfg, stages, reporters, logger).WithTarget(addr).Run(ctx)
	}

	var (
		rep runner.RunReport
		err error
	)
	switch {
	case opts.TUI:
		rep, err = tui.Run(ctx, cfg, addr, run)
	case opts.JSON:
		rep, err = run(ctx, nil)
	default:
		printHeader(stdout, cfg, addr, cat)
		rep, err = run(ctx, Printer{W: stdout})
	}
	if err != nil {
		return report.ExitError, err
	}

	if opts.JSON {
		if err := report.WriteJSON(stdout, rep); err != nil {
			return report.ExitError, err
		}
	} else {
		fmt.Fprint(stdout, report.Render(rep, report.Options{Plain: !isTerminal(stdout)}))
	}

	if opts.OutPrefix != "" {
		paths, err := report.Export(opts.OutPrefix, rep)
		if err != nil {
			return report.ExitError, err
		}
		logger.Info("reports saved", zap.Strings("files", paths))
	}

	return report.ExitCode(rep), nil
}

func buildConnector(cfg runner.Config, sim *dummy.ServerConfig) (target.Connector, string) {
	if sim != nil {
		srv := dummy.Start(*sim)
		return srv, srv.Addr()
	}
	opts := target.ClickHouseOptions{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Database:       cfg.Database,
		User:           cfg.User,
		Password:       cfg.Password,
		ConnectTimeout: cfg.ConnectTimeout,
		IOTimeout:      cfg.IOTimeout,
	}
	if cfg.ConnPolicy == target.PolicyShared {
		// one client serves every worker
		opts.MaxOpenConns = cfg.MaxWorkers
	}
	ch := target.NewClickHouse(opts)
	return ch, ch.Addr()
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
