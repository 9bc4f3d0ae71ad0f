package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparkline_Window(t *testing.T) {
	s := NewSparkline(3, 100, "rate", lipgloss.NewStyle())
	for _, v := range []float64{10, 20, 30, 40} {
		s.Add(v)
	}
	assert.Equal(t, []float64{20, 30, 40}, s.Data)
}

func TestSparkline_Bar(t *testing.T) {
	s := NewSparkline(5, 100, "rate", lipgloss.NewStyle())
	assert.Equal(t, " ", s.Bar(0))
	assert.Equal(t, "█", s.Bar(100))
	assert.Equal(t, "█", s.Bar(250))
	assert.Equal(t, " ", s.Bar(-5))

	zero := NewSparkline(5, 0, "rate", lipgloss.NewStyle())
	assert.Equal(t, " ", zero.Bar(50))
}

func TestSparkline_ViewPads(t *testing.T) {
	s := NewSparkline(4, 100, "rate", lipgloss.NewStyle())
	s.Add(100)

	lines := strings.Split(s.View(), "\n")
	assert.Equal(t, "rate", lines[0])
	assert.Equal(t, "█   ", lines[1])
}
