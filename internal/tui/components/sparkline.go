package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one-line bar chart over a fixed scale.
type Sparkline struct {
	Data  []float64
	Width int
	Max   float64
	Style lipgloss.Style
	Label string
}

func NewSparkline(width int, scale float64, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Max:   scale,
		Label: label,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

// Add appends a value, dropping the oldest once Width is exceeded.
func (s *Sparkline) Add(val float64) {
	s.Data = append(s.Data, val)
	if len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}
}

// Bar maps v onto one of the block glyphs.
func (s Sparkline) Bar(v float64) string {
	if s.Max <= 0 {
		return levels[0]
	}
	idx := int(v / s.Max * float64(len(levels)-1))
	idx = max(0, min(idx, len(levels)-1))
	return levels[idx]
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}

	var graph strings.Builder
	for _, v := range s.Data {
		graph.WriteString(s.Bar(v))
	}
	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}

	return s.Style.Render(s.Label) + "\n" + s.Style.Render(graph.String())
}
