// Package report renders a finished run as a summary table and as
// machine-readable records.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
	"loadceiling/internal/tui/styles"
)

const ruler = "============================================================"

// Exit codes of a finished run.
const (
	ExitStable      = 0
	ExitError       = 1
	ExitNoStable    = 2
	ExitInterrupted = 130
)

// ExitCode is 0 only when a stable level was found.
func ExitCode(r runner.RunReport) int {
	switch {
	case r.State == runner.StateInterrupted:
		return ExitInterrupted
	case r.MaxStable.Found:
		return ExitStable
	default:
		return ExitNoStable
	}
}

// Options controls rendering.
type Options struct {
	// Plain disables borders and colors, for logs and pipes.
	Plain bool
}

// Render formats the stage table followed by the verdict lines.
func Render(r runner.RunReport, opts Options) string {
	var b strings.Builder

	b.WriteString("\n" + ruler + "\n")
	b.WriteString("📈 LOAD TEST SUMMARY\n")
	b.WriteString(ruler + "\n")

	if opts.Plain {
		b.WriteString(plainTable(r))
	} else {
		b.WriteString(styledTable(r))
		b.WriteString("\n")
	}

	if bp := r.Breakpoint; bp != nil {
		fmt.Fprintf(&b, "\n🔴 Breaking point: %d workers (last good: %s)\n", bp.Level, lastGood(bp.LastGood))
	}
	if r.State == runner.StateInterrupted {
		b.WriteString("\n⚠️  Run interrupted before completion\n")
	}

	th := r.Config.Thresholds
	if r.MaxStable.Found {
		fmt.Fprintf(&b, "\n✅ Maximum stable load: %d concurrent workers\n", r.MaxStable.Workers)
		fmt.Fprintf(&b, "   (%.0f%%+ success rate, <%d failed connections)\n", th.StableSuccessRate, th.StableConnFailures)
	} else {
		b.WriteString("\n❌ No stable level found\n")
		fmt.Fprintf(&b, "   (no stage reached %.0f%%+ success rate with <%d failed connections)\n", th.StableSuccessRate, th.StableConnFailures)
	}
	b.WriteString(ruler + "\n")

	return b.String()
}

func lastGood(l runner.Level) string {
	if !l.Found {
		return "none"
	}
	return fmt.Sprintf("~%d workers", l.Workers)
}

// sortedStages returns stages in ascending worker order.
func sortedStages(stages []stats.StageResult) []stats.StageResult {
	out := slices.Clone(stages)
	slices.SortStableFunc(out, func(a, b stats.StageResult) int {
		return cmp.Compare(a.Workers, b.Workers)
	})
	return out
}

func workersCell(s stats.StageResult) string {
	if s.Partial {
		return fmt.Sprintf("%d (partial)", s.Workers)
	}
	return fmt.Sprintf("%d", s.Workers)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func plainTable(r runner.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-15s %-15s %-15s %-15s\n", "Workers", "Success Rate", "Avg Time", "P95", "Failed Conn")
	b.WriteString(strings.Repeat("-", 64) + "\n")
	for _, s := range sortedStages(r.Stages) {
		fmt.Fprintf(&b, "%-14s %-15s %-15s %-15s %-15d\n",
			workersCell(s),
			fmt.Sprintf("%.1f%%", s.SuccessRate),
			seconds(s.AvgSuccessDuration),
			seconds(s.P95),
			s.ConnectionFailures)
	}
	return b.String()
}

func styledTable(r runner.RunReport) string {
	th := r.Config.Thresholds
	stages := sortedStages(r.Stages)

	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		rows = append(rows, []string{
			workersCell(s),
			fmt.Sprintf("%.1f%%", s.SuccessRate),
			seconds(s.AvgSuccessDuration),
			seconds(s.P95),
			fmt.Sprintf("%d", s.ConnectionFailures),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers("Workers", "Success Rate", "Avg Time", "P95", "Failed Conn").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			if col == 1 && row >= 0 && row < len(stages) {
				return styles.Rate(stages[row].SuccessRate, th.StopSuccessRate, th.StableSuccessRate).Padding(0, 1)
			}
			return styles.Cell
		})

	return t.Render()
}
