package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards run events into a bubbletea program.
type Reporter struct {
	Out Sender
}

func (r Reporter) StageStarted(workers, units int) {
	r.Out.Send(StageStartedMsg{Workers: workers, Units: units})
}

func (r Reporter) Progress(p runner.Progress) {
	r.Out.Send(ProgressMsg(p))
}

func (r Reporter) StageFinished(res stats.StageResult, stop bool) {
	r.Out.Send(StageFinishedMsg{Result: res, Stop: stop})
}

func (r Reporter) Halted(bp runner.Breakpoint) {
	r.Out.Send(HaltedMsg(bp))
}

func (r Reporter) Pausing(d time.Duration) {
	r.Out.Send(PausingMsg(d))
}

// RunFunc executes a run, reporting through the given reporter.
type RunFunc func(ctx context.Context, rep runner.Reporter) (runner.RunReport, error)

// Run drives fn under a live view and returns its report once both the run
// and the program have finished. Quitting the view cancels the run.
func Run(ctx context.Context, cfg runner.Config, target string, fn RunFunc, opts ...tea.ProgramOption) (runner.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(cfg, target, cancel), opts...)

	done := make(chan DoneMsg, 1)
	go func() {
		rep, err := fn(ctx, Reporter{Out: p})
		msg := DoneMsg{Report: rep, Err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return runner.RunReport{}, fmt.Errorf("live view: %w", err)
	}

	res := <-done
	return res.Report, res.Err
}
