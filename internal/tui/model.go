package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
	"loadceiling/internal/tui/components"
	"loadceiling/internal/tui/styles"
)

// Messages delivered by Reporter.
type (
	StageStartedMsg struct {
		Workers int
		Units   int
	}
	ProgressMsg      runner.Progress
	StageFinishedMsg struct {
		Result stats.StageResult
		Stop   bool
	}
	HaltedMsg  runner.Breakpoint
	PausingMsg time.Duration
	DoneMsg    struct {
		Report runner.RunReport
		Err    error
	}
)

// Model is the live view of an escalation run.
type Model struct {
	cfg    runner.Config
	target string
	cancel func()

	Progress progress.Model
	Spinner  spinner.Model
	Rates    components.Sparkline

	Workers   int
	Units     int
	Completed int
	Rate      float64
	ConnFails int
	Pausing   time.Duration
	Finished  []StageFinishedMsg
	Halted    *runner.Breakpoint

	Done     bool
	Report   runner.RunReport
	Err      error
	Stopping bool

	Width int
}

// NewModel builds the view. cancel is invoked when the user quits so the run
// can wind down and deliver its partial report.
func NewModel(cfg runner.Config, target string, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Active

	return Model{
		cfg:      cfg,
		target:   target,
		cancel:   cancel,
		Progress: progress.New(progress.WithDefaultGradient()),
		Spinner:  sp,
		Rates:    components.NewSparkline(len(cfg.Levels()), 100, "Success rate per stage", styles.Success),
	}
}

func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.Done {
				return m, tea.Quit
			}
			if !m.Stopping && m.cancel != nil {
				m.cancel()
			}
			m.Stopping = true
		}
		return m, nil

	case StageStartedMsg:
		m.Workers, m.Units = msg.Workers, msg.Units
		m.Completed, m.Rate, m.ConnFails, m.Pausing = 0, 0, 0, 0
		return m, m.Progress.SetPercent(0)

	case ProgressMsg:
		m.Completed, m.Rate, m.ConnFails = msg.Completed, msg.SuccessRate, msg.ConnFails
		return m, m.Progress.SetPercent(fraction(msg.Completed, msg.Units))

	case StageFinishedMsg:
		m.Finished = append(m.Finished, msg)
		m.Rates.Add(msg.Result.SuccessRate)
		m.Completed, m.Rate, m.ConnFails = msg.Result.Total, msg.Result.SuccessRate, msg.Result.ConnectionFailures
		return m, m.Progress.SetPercent(1)

	case HaltedMsg:
		bp := runner.Breakpoint(msg)
		m.Halted = &bp
		return m, nil

	case PausingMsg:
		m.Pausing = time.Duration(msg)
		return m, nil

	case DoneMsg:
		m.Done = true
		m.Report, m.Err = msg.Report, msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.Progress.Update(msg)
		m.Progress = pm.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(done)/float64(total), 1)
}

func (m Model) View() string {
	if m.Done {
		return ""
	}

	th := m.cfg.Thresholds
	var s strings.Builder

	s.WriteString(styles.Title.Render("📈 loadceiling"))
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("Target: %s | Levels: %d→%d step %d | %d units/stage",
		m.target, m.cfg.StartWorkers, m.cfg.MaxWorkers, m.cfg.Step, m.cfg.UnitsPerStage)))
	s.WriteString("\n\n")

	status := fmt.Sprintf("%s Testing %d concurrent workers", m.Spinner.View(), m.Workers)
	switch {
	case m.Stopping:
		status = styles.Warn.Render("Stopping: waiting for in-flight queries...")
	case m.Halted != nil:
		status = styles.Error.Render(fmt.Sprintf("🔴 Breaking point reached at %d workers", m.Halted.Level))
	case m.Pausing > 0:
		status = styles.Subtle.Render(fmt.Sprintf("Pausing %s before next stage", m.Pausing))
	}
	s.WriteString(status)
	s.WriteString("\n\n")

	left := fmt.Sprintf("Completed: %d/%d\nSuccess:   %s\nConn fail: %d",
		m.Completed, m.Units,
		styles.Rate(m.Rate, th.StopSuccessRate, th.StableSuccessRate).Render(fmt.Sprintf("%.1f%%", m.Rate)),
		m.ConnFails)

	var right strings.Builder
	right.WriteString(styles.Subtle.Render("Stage history") + "\n")
	for _, f := range m.Finished {
		mark := "✓"
		if f.Stop {
			mark = "✗"
		}
		fmt.Fprintf(&right, "%s %3d workers  %5.1f%%  %d conn\n", mark, f.Result.Workers, f.Result.SuccessRate, f.Result.ConnectionFailures)
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Width(30).Render(left),
		styles.Box.Width(36).Render(strings.TrimRight(right.String(), "\n")),
	))
	s.WriteString("\n\n")
	s.WriteString(m.Rates.View())
	s.WriteString("\n\n")
	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render("Press q to stop"))

	return s.String()
}
